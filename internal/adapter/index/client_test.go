package index

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkinvoice/internal/core/domain"
	"zkinvoice/internal/core/ports"
	"zkinvoice/pkg/apperror"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithHTTP(srv.URL, srv.Client(), zerolog.Nop())
}

func TestGet_Found(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoice/12345", r.URL.Path)
		json.NewEncoder(w).Encode(ports.InvoiceMetadata{
			Commitment: "12345",
			Kind:       domain.InvoiceStandard,
			Status:     domain.InvoiceOpen,
		})
	})

	meta, err := client.Get(context.Background(), "12345")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "12345", meta.Commitment)
}

func TestGet_MissingEntryIsNil(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	meta, err := client.Get(context.Background(), "12345")
	require.NoError(t, err, "absence from a cache is normal")
	assert.Nil(t, meta)
}

func TestRegister_PostsMetadata(t *testing.T) {
	var received ports.InvoiceMetadata
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/invoice", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
	})

	err := client.Register(context.Background(), ports.InvoiceMetadata{Commitment: "777", Memo: "rent"})
	require.NoError(t, err)
	assert.Equal(t, "777", received.Commitment)
	assert.Equal(t, "rent", received.Memo)
}

func TestMarkSettled_PostsUpdate(t *testing.T) {
	var received ports.SettlementUpdate
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoice/777/settle", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	})

	err := client.MarkSettled(context.Background(), "777", ports.SettlementUpdate{
		PaymentTxID: "tx-1",
		Payer:       "pz1payer",
		Repeatable:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "tx-1", received.PaymentTxID)
	assert.True(t, received.Repeatable)
}

func TestErrorsAreTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := client.Register(context.Background(), ports.InvoiceMetadata{Commitment: "1"})
	require.Error(t, err)
	assert.Equal(t, apperror.CategoryTransient, apperror.CategoryOf(err))

	_, err = client.Get(context.Background(), "1")
	require.Error(t, err)
	assert.Equal(t, apperror.CategoryTransient, apperror.CategoryOf(err))
}
