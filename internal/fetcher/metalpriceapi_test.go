package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMetalPriceAPIQuoteCompositeRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("api_key") != "secret" {
			t.Fatalf("api_key 不正确: %s", q.Get("api_key"))
		}
		if q.Get("base") != "USD" || q.Get("currencies") != "XPT" {
			t.Fatalf("查询参数不正确: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"success":true,"base":"USD","rates":{"USDXPT":982.75,"XPT":0.0010175}}`))
	}))
	defer srv.Close()

	provider := NewMetalPriceAPI(MetalPriceAPIOptions{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second}, testLogger())

	price, err := provider.Quote(context.Background(), "XPT")
	if err != nil {
		t.Fatalf("Quote 应成功: %v", err)
	}
	if price.String() != "982.75" {
		t.Fatalf("应优先使用 USDXPT 复合字段, 实际 %s", price)
	}
}

func TestMetalPriceAPIQuoteInvertsPlainRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"rates":{"XPT":0.001}}`))
	}))
	defer srv.Close()

	provider := NewMetalPriceAPI(MetalPriceAPIOptions{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second}, testLogger())

	price, err := provider.Quote(context.Background(), "XPT")
	if err != nil {
		t.Fatalf("Quote 应成功: %v", err)
	}
	if price.String() != "1000" {
		t.Fatalf("每美元汇率应取倒数, 实际 %s", price)
	}
}

func TestMetalPriceAPIQuoteSuccessFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	provider := NewMetalPriceAPI(MetalPriceAPIOptions{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second}, testLogger())

	if _, err := provider.Quote(context.Background(), "XPT"); err == nil {
		t.Fatal("success=false 应报错")
	}
}

func TestMetalPriceAPIQuoteMissingRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"rates":{"XAU":0.0005}}`))
	}))
	defer srv.Close()

	provider := NewMetalPriceAPI(MetalPriceAPIOptions{BaseURL: srv.URL, APIKey: "secret", Timeout: time.Second}, testLogger())

	if _, err := provider.Quote(context.Background(), "XPT"); err == nil {
		t.Fatal("响应中缺少该品种应报错")
	}
}

func TestMetalPriceAPIQuoteMissingAPIKey(t *testing.T) {
	provider := NewMetalPriceAPI(MetalPriceAPIOptions{}, testLogger())

	if _, err := provider.Quote(context.Background(), "XPT"); err == nil {
		t.Fatal("未配置 api key 应报错")
	}
}
