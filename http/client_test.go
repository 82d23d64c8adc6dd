package http

import (
	"context"
	"net/http"
	"testing"

	x402 "github.com/ldclabs/x402-icp-go"
)

type recordingSelector struct {
	calls int
}

func (s *recordingSelector) SelectAndSign(ctx context.Context, accepts []x402.PaymentRequirements, signers []x402.Signer) (*x402.PaymentPayload, error) {
	s.calls++
	return signers[0].Sign(ctx, &accepts[0])
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient()
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client.Transport != http.DefaultTransport {
		t.Error("client without signers should use the default transport")
	}
}

func TestWithSignerInstallsTransport(t *testing.T) {
	signer := &fakeSigner{}
	client, err := NewClient(WithSigner(signer))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	transport, ok := client.Transport.(*X402Transport)
	if !ok {
		t.Fatalf("transport = %T, want *X402Transport", client.Transport)
	}
	if len(transport.Signers) != 1 {
		t.Errorf("signers = %d, want 1", len(transport.Signers))
	}
	if transport.Selector == nil {
		t.Error("default selector not set")
	}
}

func TestWithSignerAppends(t *testing.T) {
	client, err := NewClient(WithSigner(&fakeSigner{}), WithSigner(&otherNetworkSigner{}))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	transport := client.Transport.(*X402Transport)
	if len(transport.Signers) != 2 {
		t.Errorf("signers = %d, want 2", len(transport.Signers))
	}
}

func TestWithSelector(t *testing.T) {
	selector := &recordingSelector{}
	client, err := NewClient(WithSigner(&fakeSigner{}), WithSelector(selector))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	transport := client.Transport.(*X402Transport)
	if transport.Selector != selector {
		t.Error("custom selector not installed")
	}

	server := paymentGatedServer(t)
	defer server.Close()

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
	if selector.calls != 1 {
		t.Errorf("selector calls = %d, want 1", selector.calls)
	}
}

func TestWithPaymentCallbackUnknownEvent(t *testing.T) {
	_, err := NewClient(WithPaymentCallback("no-such-event", func(x402.PaymentEvent) {}))
	if err == nil {
		t.Error("expected error for unknown event type")
	}
}

func TestWithHTTPClient(t *testing.T) {
	custom := &http.Client{}
	client, err := NewClient(WithHTTPClient(custom), WithSigner(&fakeSigner{}))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client.Client != custom {
		t.Error("custom http.Client not installed")
	}
	if _, ok := client.Transport.(*X402Transport); !ok {
		t.Errorf("transport = %T, want *X402Transport", client.Transport)
	}
}
