package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"marathon-billing-engine/internal/config"
	"marathon-billing-engine/internal/model"
)

func testClient(t *testing.T, handler http.HandlerFunc) AlfabankClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAlfabankClient(&config.AlfaBank{
		APIURL:   server.URL,
		Username: "merchant-api",
		Password: "secret",
	})
}

func TestRegisterOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("sends credentials and order fields as a form", func(t *testing.T) {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/register.do" {
				t.Errorf("path = %s, want /register.do", r.URL.Path)
			}
			if err := r.ParseForm(); err != nil {
				t.Fatal(err)
			}
			if got := r.PostForm.Get("userName"); got != "merchant-api" {
				t.Errorf("userName = %q", got)
			}
			if got := r.PostForm.Get("amount"); got != "99000" {
				t.Errorf("amount = %q, want 99000 minor units", got)
			}
			if got := r.PostForm.Get("orderNumber"); got != "20250310-abc" {
				t.Errorf("orderNumber = %q", got)
			}

			fmt.Fprint(w, `{"orderId":"gw-1","formUrl":"https://pay.example/form/gw-1"}`)
		})

		result, err := c.RegisterOrder(ctx, RegisterOrderParams{
			OrderNumber: "20250310-abc",
			Amount:      99000,
			Description: "Premium subscription (30 days)",
			ReturnURL:   "https://app.example/return",
			FailURL:     "https://app.example/fail",
		})
		if err != nil {
			t.Fatalf("RegisterOrder: %v", err)
		}
		if result.GatewayOrderID != "gw-1" {
			t.Errorf("gateway order id = %q", result.GatewayOrderID)
		}
		if result.FormURL != "https://pay.example/form/gw-1" {
			t.Errorf("form url = %q", result.FormURL)
		}
	})

	t.Run("non-zero errorCode becomes a GatewayError", func(t *testing.T) {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"errorCode":"5","errorMessage":"Access denied"}`)
		})

		_, err := c.RegisterOrder(ctx, RegisterOrderParams{OrderNumber: "x", Amount: 100})
		var gwErr *GatewayError
		if !errors.As(err, &gwErr) {
			t.Fatalf("err = %v, want *GatewayError", err)
		}
		if gwErr.Code != "5" || gwErr.Message != "Access denied" {
			t.Errorf("gateway error = %+v", gwErr)
		}
	})

	t.Run("http failure is a plain error, not a GatewayError", func(t *testing.T) {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		})

		_, err := c.RegisterOrder(ctx, RegisterOrderParams{OrderNumber: "x", Amount: 100})
		if err == nil {
			t.Fatal("expected error")
		}
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			t.Fatalf("err = %v, must not be a GatewayError", err)
		}
	})

	t.Run("missing form url is rejected", func(t *testing.T) {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"orderId":"gw-1"}`)
		})
		if _, err := c.RegisterOrder(ctx, RegisterOrderParams{OrderNumber: "x", Amount: 100}); err == nil {
			t.Fatal("expected error for missing formUrl")
		}
	})
}

func TestGetOrderStatus(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		code int
		want model.OrderStatus
	}{
		{0, model.StatusPending},
		{1, model.StatusProcessing},
		{2, model.StatusSucceeded},
		{3, model.StatusCancelled},
		{4, model.StatusRefunded},
		{5, model.StatusProcessing},
		{6, model.StatusFailed},
		{99, model.StatusPending}, // unknown code must never settle an order
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("orderStatus %d maps to %s", tc.code, tc.want), func(t *testing.T) {
			c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/getOrderStatusExtended.do" {
					t.Errorf("path = %s", r.URL.Path)
				}
				fmt.Fprintf(w, `{"orderStatus":%d,"amount":99000,"currency":"643"}`, tc.code)
			})

			result, err := c.GetOrderStatus(ctx, "gw-1")
			if err != nil {
				t.Fatalf("GetOrderStatus: %v", err)
			}
			if result.Status != tc.want {
				t.Errorf("status = %s, want %s", result.Status, tc.want)
			}
			if result.StatusCode != tc.code {
				t.Errorf("status code = %d, want %d", result.StatusCode, tc.code)
			}
		})
	}

	t.Run("card auth info sets the payment method", func(t *testing.T) {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"orderStatus":2,"cardAuthInfo":{"pan":"4111**1111"}}`)
		})

		result, err := c.GetOrderStatus(ctx, "gw-1")
		if err != nil {
			t.Fatalf("GetOrderStatus: %v", err)
		}
		if result.PaymentMethod != "card" {
			t.Errorf("payment method = %q, want card", result.PaymentMethod)
		}
	})
}

func TestRefundOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("sends the refund amount", func(t *testing.T) {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/refund.do" {
				t.Errorf("path = %s, want /refund.do", r.URL.Path)
			}
			if err := r.ParseForm(); err != nil {
				t.Fatal(err)
			}
			if got := r.PostForm.Get("amount"); got != "99000" {
				t.Errorf("amount = %q, want 99000", got)
			}
			fmt.Fprint(w, `{"errorCode":"0"}`)
		})

		if err := c.RefundOrder(ctx, "gw-1", 99000); err != nil {
			t.Fatalf("RefundOrder: %v", err)
		}
	})

	t.Run("rejection surfaces as a GatewayError", func(t *testing.T) {
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"errorCode":"7","errorMessage":"Refund not allowed"}`)
		})

		err := c.RefundOrder(ctx, "gw-1", 99000)
		var gwErr *GatewayError
		if !errors.As(err, &gwErr) || gwErr.Code != "7" {
			t.Fatalf("err = %v, want gateway error code 7", err)
		}
	})
}

func TestReverseOrder(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse.do" {
			t.Errorf("path = %s, want /reverse.do", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if got := r.PostForm.Get("orderId"); got != "gw-1" {
			t.Errorf("orderId = %q", got)
		}
		fmt.Fprint(w, `{}`)
	})

	if err := c.ReverseOrder(context.Background(), "gw-1"); err != nil {
		t.Fatalf("ReverseOrder: %v", err)
	}
}
