package venue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"TradePilot/internal/domain/models"
)

func bridgeStub(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestHTTPGetOpenPositionsDecodesWirePayload(t *testing.T) {
	srv := bridgeStub(t, map[string]string{
		"/api/v1/positions": `[{"bot_id":"b1","symbol":"EURUSD","direction":"BUY","volume":0.5,"entry_price":1.1234,"open_time_ms":1741597200000}]`,
	})
	defer srv.Close()

	v := NewHTTP(srv.URL, "key", time.Second, nil)
	positions, err := v.GetOpenPositions(context.Background(), "EURUSD")
	if err != nil {
		t.Fatalf("get positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	p := positions[0]
	if p.BotID != "b1" || p.Symbol != "EURUSD" || p.Direction != models.DirectionBuy {
		t.Fatalf("position fields lost in decode: %+v", p)
	}
	if p.Volume != 0.5 || p.EntryPrice != 1.1234 {
		t.Fatalf("numeric fields lost in decode: %+v", p)
	}
	if p.OpenTime.UnixMilli() != 1741597200000 {
		t.Fatalf("open time lost in decode: %v", p.OpenTime)
	}
}

func TestHTTPGetAccountInfoDecodesWirePayload(t *testing.T) {
	srv := bridgeStub(t, map[string]string{
		"/api/v1/account": `{"balance":1000.5,"equity":990.25,"free_margin":800}`,
	})
	defer srv.Close()

	v := NewHTTP(srv.URL, "key", time.Second, nil)
	info, err := v.GetAccountInfo(context.Background())
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if info.Balance != 1000.5 || info.Equity != 990.25 || info.FreeMargin != 800 {
		t.Fatalf("account fields lost in decode: %+v", info)
	}
}

func TestHTTPGetHistoryDealsDecodesWirePayload(t *testing.T) {
	srv := bridgeStub(t, map[string]string{
		"/api/v1/deals": `[{"symbol":"EURUSD","time_ms":1741597200000,"volume":0.1,"profit":-2.5}]`,
	})
	defer srv.Close()

	v := NewHTTP(srv.URL, "key", time.Second, nil)
	deals, err := v.GetHistoryDeals(context.Background(), time.UnixMilli(0), time.Now())
	if err != nil {
		t.Fatalf("get deals: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("expected 1 deal, got %d", len(deals))
	}
	d := deals[0]
	if d.Symbol != "EURUSD" || d.Volume != 0.1 || d.Profit != -2.5 {
		t.Fatalf("deal fields lost in decode: %+v", d)
	}
	if d.Time.UnixMilli() != 1741597200000 {
		t.Fatalf("deal time lost in decode: %v", d.Time)
	}
}

func TestHTTPGetSymbolInfoDecodesWirePayload(t *testing.T) {
	srv := bridgeStub(t, map[string]string{
		"/api/v1/symbols/EURUSD": `{"symbol":"EURUSD","contract_size":100000,"point":0.0001,"min_lot":0.01,"max_lot":100,"lot_step":0.01,"min_stop_distance":0.0005}`,
	})
	defer srv.Close()

	v := NewHTTP(srv.URL, "key", time.Second, nil)
	info, err := v.GetSymbolInfo(context.Background(), "EURUSD")
	if err != nil {
		t.Fatalf("get symbol info: %v", err)
	}
	if info == nil {
		t.Fatal("expected symbol info")
	}
	if info.ContractSize != 100000 || info.Point != 0.0001 || info.MinStopDistance != 0.0005 {
		t.Fatalf("symbol info fields lost in decode: %+v", info)
	}
}
