package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacie_back_end/internal/models"
)

func fakeElastic(t *testing.T, handler http.HandlerFunc) *Elastic {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewElastic(client, "")
}

func TestSearchReturnsHitIDs(t *testing.T) {
	var body map[string]any
	es := fakeElastic(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/_search", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		_, _ = io.WriteString(w, `{"hits":{"hits":[{"_id":"a"},{"_id":"b"}]}}`)
	})

	ids, err := es.Search(context.Background(), "paracetamol", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.EqualValues(t, 5, body["size"])
}

func TestSearchErrorIsUnavailable(t *testing.T) {
	es := fakeElastic(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":"down"}`)
	})

	_, err := es.Search(context.Background(), "x", 0)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestIndexProductUsesProductID(t *testing.T) {
	id := gocql.TimeUUID()
	var path, payload string
	es := fakeElastic(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		payload = string(data)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	})

	err := es.IndexProduct(context.Background(), models.Product{ID: id, Name: "Dolo 650", IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "/products/_doc/"+id.String(), path)
	assert.True(t, strings.Contains(payload, `"name":"Dolo 650"`))
}

func TestDeleteMissingDocumentIsNotAnError(t *testing.T) {
	es := fakeElastic(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"result":"not_found"}`)
	})
	assert.NoError(t, es.DeleteProduct(context.Background(), "zzz"))
}
