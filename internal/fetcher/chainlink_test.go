package fetcher

import (
	"context"
	"errors"
	"testing"
)

func TestChainlinkMissingRPCURL(t *testing.T) {
	provider := NewChainlink(ChainlinkOptions{Feeds: map[string]string{"BTC": "0x1"}}, testLogger())

	if _, err := provider.Quote(context.Background(), "BTC"); err == nil {
		t.Fatal("未配置 rpc url 应报错")
	}
}

func TestChainlinkMissingFeed(t *testing.T) {
	provider := NewChainlink(ChainlinkOptions{RPCURL: "http://localhost:8545"}, testLogger())

	_, err := provider.Quote(context.Background(), "BTC")
	if !errors.Is(err, ErrUnsupportedSymbol) {
		t.Fatalf("未配置喂价地址应映射为 ErrUnsupportedSymbol, 实际 %v", err)
	}
}
