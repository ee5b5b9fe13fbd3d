package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/example/paybridge/internal/models"
)

type recordedRequest struct {
	Path string
	Form url.Values
}

// fakeGateway answers every POST with the given status and body and records the form.
func fakeGateway(t *testing.T, status int, body string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var calls []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		calls = append(calls, recordedRequest{Path: r.URL.Path, Form: r.PostForm})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestEasebuzz(t *testing.T, baseURL string, policy VerificationPolicy) *EasebuzzAdapter {
	t.Helper()
	a, err := NewEasebuzzAdapter(EasebuzzConfig{
		Key:          "key",
		Salt:         "salt",
		PayURL:       baseURL,
		DashboardURL: baseURL,
		Policy:       policy,
	}, nil, nil)
	require.NoError(t, err)
	return a
}

func easebuzzRequest() PaymentRequest {
	return PaymentRequest{
		Reference:   "TXN1",
		Amount:      decimal.NewFromInt(100),
		Name:        "Asha",
		Email:       "a@b.com",
		Phone:       "9876543210",
		ProductInfo: "Payment",
		SuccessURL:  "https://shop.example/payment/success",
	}
}

func TestNewEasebuzzAdapterRequiresCredentials(t *testing.T) {
	_, err := NewEasebuzzAdapter(EasebuzzConfig{Key: "key", Salt: "  "}, nil, nil)
	require.ErrorIs(t, err, ErrMissingCredentials)
	require.True(t, IsConfigError(err))
}

func TestEasebuzzCreatePayment(t *testing.T) {
	t.Run("success returns hosted link and access key", func(t *testing.T) {
		srv, calls := fakeGateway(t, http.StatusOK, `{"status":1,"data":"ACCESS123"}`)
		a := newTestEasebuzz(t, srv.URL, PolicyStrict)

		res, err := a.CreatePayment(context.Background(), easebuzzRequest())
		require.NoError(t, err)
		require.True(t, res.Success)
		require.Equal(t, "TXN1", res.Reference)
		require.Equal(t, "ACCESS123", res.GatewayID)
		require.Equal(t, srv.URL+"/pay/ACCESS123", res.PaymentLink)
		require.Equal(t, models.StatusPending, res.Status)
		require.Equal(t, "ACCESS123", res.Raw["access_key"])

		require.Len(t, *calls, 1)
		form := (*calls)[0].Form
		require.Equal(t, easebuzzInitiatePath, (*calls)[0].Path)
		require.Equal(t, "100.00", form.Get("amount"))
		require.Equal(t, fixtureRequestHash, form.Get("hash"))

		surl, err := url.Parse(form.Get("surl"))
		require.NoError(t, err)
		require.Equal(t, "TXN1", surl.Query().Get("txnid"))

		furl, err := url.Parse(form.Get("furl"))
		require.NoError(t, err)
		require.Equal(t, "/payment/success", furl.Path)
		require.Equal(t, "failure", furl.Query().Get("status"))
		require.Equal(t, "TXN1", furl.Query().Get("txnid"))
	})

	t.Run("explicit failure url keeps its own query", func(t *testing.T) {
		srv, calls := fakeGateway(t, http.StatusOK, `{"status":1,"data":"ACCESS123"}`)
		a := newTestEasebuzz(t, srv.URL, PolicyStrict)

		req := easebuzzRequest()
		req.FailureURL = "https://shop.example/payment/failed?src=app"
		_, err := a.CreatePayment(context.Background(), req)
		require.NoError(t, err)

		furl, err := url.Parse((*calls)[0].Form.Get("furl"))
		require.NoError(t, err)
		require.Equal(t, "app", furl.Query().Get("src"))
		require.Equal(t, "TXN1", furl.Query().Get("txnid"))
		require.Empty(t, furl.Query().Get("status"))
	})

	t.Run("validation happens before any outbound call", func(t *testing.T) {
		srv, calls := fakeGateway(t, http.StatusOK, `{"status":1,"data":"ACCESS123"}`)
		a := newTestEasebuzz(t, srv.URL, PolicyStrict)

		cases := map[string]func(*PaymentRequest){
			"successUrl": func(r *PaymentRequest) { r.SuccessURL = "" },
			"email":      func(r *PaymentRequest) { r.Email = " " },
			"amount":     func(r *PaymentRequest) { r.Amount = decimal.Zero },
			"reference":  func(r *PaymentRequest) { r.Reference = "" },
		}
		for field, mutate := range cases {
			req := easebuzzRequest()
			mutate(&req)
			_, err := a.CreatePayment(context.Background(), req)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr, field)
			require.Equal(t, field, vErr.Field)
		}

		req := easebuzzRequest()
		req.SuccessURL = "/relative/path"
		_, err := a.CreatePayment(context.Background(), req)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)

		require.Empty(t, *calls)
	})

	t.Run("gateway rejection is a failed result", func(t *testing.T) {
		srv, _ := fakeGateway(t, http.StatusOK, `{"status":0,"error_desc":"Invalid hash"}`)
		a := newTestEasebuzz(t, srv.URL, PolicyStrict)

		res, err := a.CreatePayment(context.Background(), easebuzzRequest())
		require.NoError(t, err)
		require.False(t, res.Success)
		require.Equal(t, "Invalid hash", res.Message)
	})

	t.Run("non-2xx upstream", func(t *testing.T) {
		srv, _ := fakeGateway(t, http.StatusBadGateway, `upstream down`)
		a := newTestEasebuzz(t, srv.URL, PolicyStrict)

		res, err := a.CreatePayment(context.Background(), easebuzzRequest())
		require.NoError(t, err)
		require.False(t, res.Success)
		require.Contains(t, res.Message, "502")
		require.Equal(t, "upstream down", res.Raw["body"])
	})

	t.Run("malformed body", func(t *testing.T) {
		srv, _ := fakeGateway(t, http.StatusOK, `<html>oops</html>`)
		a := newTestEasebuzz(t, srv.URL, PolicyStrict)

		res, err := a.CreatePayment(context.Background(), easebuzzRequest())
		require.NoError(t, err)
		require.False(t, res.Success)
		require.Contains(t, res.Message, "malformed")
	})

	t.Run("unreachable gateway", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		base := srv.URL
		srv.Close()
		a := newTestEasebuzz(t, base, PolicyStrict)

		res, err := a.CreatePayment(context.Background(), easebuzzRequest())
		require.NoError(t, err)
		require.False(t, res.Success)
		require.NotEmpty(t, res.Message)
	})
}

func TestEasebuzzHandleCallback(t *testing.T) {
	payload := func() map[string]string {
		return map[string]string{
			"txnid":       "TXN1",
			"amount":      "100.00",
			"productinfo": "Payment",
			"firstname":   "Asha",
			"email":       "a@b.com",
			"status":      "success",
			"easepayid":   "E100",
			"hash":        fixtureResponseHash,
		}
	}

	t.Run("valid hash", func(t *testing.T) {
		a := newTestEasebuzz(t, "http://unused", PolicyStrict)

		res, err := a.HandleCallback(context.Background(), payload())
		require.NoError(t, err)
		require.True(t, res.Verified)
		require.Equal(t, "TXN1", res.Reference)
		require.Equal(t, "E100", res.GatewayID)
		require.Equal(t, models.StatusSuccess, res.Status)
		require.Equal(t, "success", res.Raw["status"])
	})

	t.Run("strict rejects a tampered payload", func(t *testing.T) {
		a := newTestEasebuzz(t, "http://unused", PolicyStrict)
		p := payload()
		p["amount"] = "1.00"

		_, err := a.HandleCallback(context.Background(), p)
		require.ErrorIs(t, err, ErrHashMismatch)
		require.True(t, IsVerificationError(err))
	})

	t.Run("strict reports a missing hash", func(t *testing.T) {
		a := newTestEasebuzz(t, "http://unused", PolicyStrict)
		p := payload()
		delete(p, "hash")

		_, err := a.HandleCallback(context.Background(), p)
		require.ErrorIs(t, err, ErrHashMissing)
	})

	t.Run("permissive proceeds unverified", func(t *testing.T) {
		a := newTestEasebuzz(t, "http://unused", PolicyPermissive)
		p := payload()
		p["status"] = "userCancelled"

		res, err := a.HandleCallback(context.Background(), p)
		require.NoError(t, err)
		require.False(t, res.Verified)
		require.Equal(t, models.StatusCancelled, res.Status)
	})

	t.Run("txnid is required", func(t *testing.T) {
		a := newTestEasebuzz(t, "http://unused", PolicyPermissive)

		_, err := a.HandleCallback(context.Background(), map[string]string{"status": "success"})
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
	})
}

func TestEasebuzzCheckPaymentStatus(t *testing.T) {
	query := StatusQuery{Reference: "TXN1", Amount: decimal.NewFromInt(100), Email: "a@b.com", Phone: "+91 98765-43210"}

	t.Run("normalizes phone and parses status", func(t *testing.T) {
		srv, calls := fakeGateway(t, http.StatusOK, `{"status":true,"msg":{"txnid":"TXN1","status":"success","easepayid":"E100"}}`)
		a := newTestEasebuzz(t, srv.URL, PolicyStrict)

		res, err := a.CheckPaymentStatus(context.Background(), query)
		require.NoError(t, err)
		require.True(t, res.Success)
		require.Equal(t, models.StatusSuccess, res.Status)
		require.Equal(t, "E100", res.GatewayID)

		form := (*calls)[0].Form
		require.Equal(t, easebuzzStatusPath, (*calls)[0].Path)
		require.Equal(t, "9876543210", form.Get("phone"))
		require.Equal(t, ComputeRequestHash([]string{"TXN1", "100.00", "a@b.com", "9876543210"}, "key", "salt"), form.Get("hash"))
	})

	t.Run("rejects a short phone without calling out", func(t *testing.T) {
		srv, calls := fakeGateway(t, http.StatusOK, `{}`)
		a := newTestEasebuzz(t, srv.URL, PolicyStrict)

		q := query
		q.Phone = "12345"
		_, err := a.CheckPaymentStatus(context.Background(), q)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		require.Equal(t, "phone", vErr.Field)
		require.Empty(t, *calls)
	})

	t.Run("requires email", func(t *testing.T) {
		a := newTestEasebuzz(t, "http://unused", PolicyStrict)

		q := query
		q.Email = ""
		_, err := a.CheckPaymentStatus(context.Background(), q)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		require.Equal(t, "email", vErr.Field)
	})

	t.Run("gateway error", func(t *testing.T) {
		srv, _ := fakeGateway(t, http.StatusOK, `{"status":false,"msg":"Transaction not found"}`)
		a := newTestEasebuzz(t, srv.URL, PolicyStrict)

		res, err := a.CheckPaymentStatus(context.Background(), query)
		require.NoError(t, err)
		require.False(t, res.Success)
		require.Equal(t, "Transaction not found", res.Message)
	})
}

func TestEasebuzzRetrieveTransactionDetails(t *testing.T) {
	shapes := map[string]string{
		"msg array":   `{"status":true,"msg":[{"txnid":"OTHER","status":"failure"},{"txnid":"TXN1","status":"success","easepayid":"E100","amount":"100.00"}]}`,
		"data object": `{"status":true,"data":{"txnid":"TXN1","status":"success","easepayid":"E100","amount":"100.00"}}`,
		"bare object": `{"txnid":"TXN1","status":"success","easepayid":"E100","amount":"100.00"}`,
		"bare array":  `[{"txnid":"TXN1","status":"success","easepayid":"E100","amount":"100.00"}]`,
	}
	for name, body := range shapes {
		t.Run(name, func(t *testing.T) {
			srv, calls := fakeGateway(t, http.StatusOK, body)
			a := newTestEasebuzz(t, srv.URL, PolicyStrict)

			res, err := a.RetrieveTransactionDetails(context.Background(), DetailQuery{Reference: "TXN1"})
			require.NoError(t, err)
			require.True(t, res.Success)
			require.Equal(t, "TXN1", res.Reference)
			require.Equal(t, "E100", res.GatewayID)
			require.Equal(t, models.StatusSuccess, res.Status)
			require.Equal(t, "100.00", res.Amount)
			require.Equal(t, "TXN1", (*calls)[0].Form.Get("txnid"))
		})
	}

	t.Run("prefers the gateway id once known", func(t *testing.T) {
		srv, calls := fakeGateway(t, http.StatusOK, shapes["data object"])
		a := newTestEasebuzz(t, srv.URL, PolicyStrict)

		_, err := a.RetrieveTransactionDetails(context.Background(), DetailQuery{Reference: "TXN1", GatewayID: "E100"})
		require.NoError(t, err)
		form := (*calls)[0].Form
		require.Equal(t, "E100", form.Get("easepayid"))
		require.Empty(t, form.Get("txnid"))
	})

	t.Run("empty payload", func(t *testing.T) {
		srv, _ := fakeGateway(t, http.StatusOK, `{"status":true,"msg":[]}`)
		a := newTestEasebuzz(t, srv.URL, PolicyStrict)

		res, err := a.RetrieveTransactionDetails(context.Background(), DetailQuery{Reference: "TXN1"})
		require.NoError(t, err)
		require.False(t, res.Success)
	})
}
