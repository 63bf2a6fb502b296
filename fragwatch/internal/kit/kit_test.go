package kit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestChain_Order(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}

	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	if err != nil || resp != "ok" {
		t.Fatalf("resp=%v err=%v", resp, err)
	}
	want := []string{"a_before", "b_before", "endpoint", "b_after", "a_after"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Fatalf("order: %v", order)
	}
}

func TestLogging_RecordsFailures(t *testing.T) {
	// WHAT: Failed calls are logged at warn with transport and request id.
	// WHY: MCP callers see only the message; the log keeps the context.
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	errFail := errors.New("fetch blocked")
	ep := Logging(logger, "rankings")(func(context.Context, any) (any, error) { return nil, errFail })

	ctx := WithRequestID(WithTransport(context.Background(), "mcp"), "req-1")
	if _, err := ep(ctx, nil); !errors.Is(err, errFail) {
		t.Fatalf("err: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"level=WARN", "op=rankings", "transport=mcp", "request_id=req-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q: %s", want, out)
		}
	}
}

func TestContext_Defaults(t *testing.T) {
	ctx := context.Background()
	if GetTransport(ctx) != "direct" || GetRequestID(ctx) != "" || GetRunID(ctx) != "" {
		t.Fatal("unexpected defaults")
	}
	ctx = WithRunID(ctx, "run-1")
	if GetRunID(ctx) != "run-1" {
		t.Fatalf("run id: %q", GetRunID(ctx))
	}
}
