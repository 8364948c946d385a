package refsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const billingDocument = `{
  "openapi": "3.0.3",
  "info": {"title": "Billing", "version": "1.0.0"},
  "paths": {},
  "components": {
    "schemas": {
      "Address": {
        "type": "object",
        "properties": {
          "city": {"type": "string"},
          "zip": {"type": "string"}
        },
        "required": ["city", "zip"]
      },
      "Invoice": {
        "type": "object",
        "properties": {
          "internal_id": {"type": "integer"},
          "amt": {"type": "number", "exclusiveMinimum": true, "minimum": 0},
          "currency": {"type": "string"},
          "note": {"type": "string", "nullable": true},
          "address": {"$ref": "#/components/schemas/Address"}
        },
        "required": ["internal_id", "amt", "currency"]
      },
      "Status": {"type": "string", "enum": ["open", "paid"]}
    }
  }
}`

func serveDocument(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func fastSettings() Settings {
	return Settings{Timeout: time.Second, MaxRetries: 0, Backoff: time.Millisecond, RetryInterval: time.Hour}
}

func TestNewSource(t *testing.T) {
	tests := []struct {
		name       string
		sourceName string
		location   string
		wantErr    bool
	}{
		{name: "http url", sourceName: "billing", location: "http://billing.local/openapi.json"},
		{name: "https url", sourceName: "billing", location: "https://billing.local/openapi.json"},
		{name: "file url", sourceName: "billing", location: "file:///etc/openapi.json"},
		{name: "plain path", sourceName: "billing", location: "./openapi.yaml"},
		{name: "empty name", sourceName: "", location: "./openapi.yaml", wantErr: true},
		{name: "empty location", sourceName: "billing", location: " ", wantErr: true},
		{name: "unsupported scheme", sourceName: "billing", location: "ftp://billing.local/openapi.json", wantErr: true},
		{name: "http without host", sourceName: "billing", location: "http:///openapi.json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSource(tt.sourceName, tt.location)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsConfigError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.sourceName, s.Name())
			assert.Equal(t, tt.location, s.Location())
			assert.False(t, s.Initialized())
		})
	}
}

func TestSourceInitialize(t *testing.T) {
	ctx := context.Background()

	t.Run("lazy lookup fetches once", func(t *testing.T) {
		srv, hits := serveDocument(t, billingDocument)
		s, err := NewSource("billing", srv.URL, WithSettings(fastSettings()))
		require.NoError(t, err)

		_, err = s.Lookup(ctx, "Invoice")
		require.NoError(t, err)
		_, err = s.Lookup(ctx, "Address")
		require.NoError(t, err)

		assert.True(t, s.Initialized())
		assert.Equal(t, int32(1), hits.Load())
		assert.Equal(t, []string{"Address", "Invoice", "Status"}, s.Names())
		assert.False(t, s.FetchedAt().IsZero())
	})

	t.Run("force refetches", func(t *testing.T) {
		srv, hits := serveDocument(t, billingDocument)
		s, err := NewSource("billing", srv.URL, WithSettings(fastSettings()))
		require.NoError(t, err)

		require.NoError(t, s.Initialize(ctx, false))
		require.NoError(t, s.Initialize(ctx, false))
		require.NoError(t, s.Initialize(ctx, true))
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("failed fetch leaves source unavailable", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		s, err := NewSource("billing", srv.URL, WithSettings(fastSettings()))
		require.NoError(t, err)

		for range 3 {
			_, err = s.Lookup(ctx, "Invoice")
			require.ErrorIs(t, err, ErrSourceUnavailable)
			assert.False(t, s.Initialized())
			assert.Empty(t, s.Names())
		}

		var se *SourceError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, NetworkError, se.Code)

		// Lazy lookups wait for the retry interval, forced refreshes do not.
		assert.Equal(t, int32(1), hits.Load())
		require.Error(t, s.Initialize(ctx, true))
		assert.Equal(t, int32(2), hits.Load())
	})

	t.Run("failed refresh keeps previous schemas", func(t *testing.T) {
		var fail atomic.Bool
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if fail.Load() {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(billingDocument))
		}))
		defer srv.Close()

		s, err := NewSource("billing", srv.URL, WithSettings(fastSettings()))
		require.NoError(t, err)
		require.NoError(t, s.Initialize(ctx, false))

		fail.Store(true)
		require.Error(t, s.Initialize(ctx, true))

		assert.True(t, s.Initialized())
		schema, err := s.Lookup(ctx, "Invoice")
		require.NoError(t, err)
		assert.Contains(t, schema.Properties, "amt")
	})

	t.Run("unparsable document", func(t *testing.T) {
		srv, _ := serveDocument(t, `{"hello": "world"}`)
		s, err := NewSource("billing", srv.URL, WithSettings(fastSettings()))
		require.NoError(t, err)

		err = s.Initialize(ctx, false)
		var se *SourceError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, ParseError, se.Code)
		assert.False(t, s.Initialized())
	})

	t.Run("file source", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "billing.json")
		require.NoError(t, os.WriteFile(path, []byte(billingDocument), 0o600))

		for _, location := range []string{path, "file://" + path} {
			s, err := NewSource("billing", location)
			require.NoError(t, err)

			schema, err := s.Lookup(ctx, "Status")
			require.NoError(t, err)
			assert.Equal(t, []any{"open", "paid"}, schema.Enum)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		s, err := NewSource("billing", filepath.Join(t.TempDir(), "missing.json"))
		require.NoError(t, err)

		require.Error(t, s.Initialize(ctx, false))
		assert.False(t, s.Initialized())
	})
}

func TestSourceLookup(t *testing.T) {
	ctx := context.Background()
	srv, _ := serveDocument(t, billingDocument)
	s, err := NewSource("billing", srv.URL, WithSettings(fastSettings()))
	require.NoError(t, err)

	t.Run("references are inlined", func(t *testing.T) {
		invoice, err := s.Lookup(ctx, "Invoice")
		require.NoError(t, err)

		address := invoice.Properties["address"]
		require.NotNil(t, address)
		assert.Empty(t, address.Ref)
		assert.Contains(t, address.Properties, "zip")
		assert.Equal(t, []string{"city", "zip"}, address.Required)
	})

	t.Run("3.0 keywords are normalized", func(t *testing.T) {
		invoice, err := s.Lookup(ctx, "Invoice")
		require.NoError(t, err)

		assert.Equal(t, []string{"string", "null"}, invoice.Properties["note"].Type.Values())

		amt := invoice.Properties["amt"]
		require.NotNil(t, amt.ExclusiveMinimum)
		assert.Equal(t, 0.0, *amt.ExclusiveMinimum)
		assert.Nil(t, amt.Minimum)
	})

	t.Run("lookups return copies", func(t *testing.T) {
		first, err := s.Lookup(ctx, "Invoice")
		require.NoError(t, err)
		delete(first.Properties, "amt")
		first.Required = nil

		second, err := s.Lookup(ctx, "Invoice")
		require.NoError(t, err)
		assert.Contains(t, second.Properties, "amt")
		assert.Equal(t, []string{"internal_id", "amt", "currency"}, second.Required)
	})

	t.Run("unknown schema", func(t *testing.T) {
		_, err := s.Lookup(ctx, "Refund")
		require.ErrorIs(t, err, ErrSchemaNotFound)
	})
}

func TestSourceCustomComponents(t *testing.T) {
	ctx := context.Background()
	srv, _ := serveDocument(t, billingDocument)

	s, err := NewSource("billing", srv.URL, WithSettings(fastSettings()), WithPublish("Status", "Missing"))
	require.NoError(t, err)

	components := s.CustomComponents(ctx)
	require.Len(t, components, 1)
	assert.Contains(t, components, "billing_Status")
}
