package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-score/inter"
	"github.com/rony4d/go-score/metrics"
)

type fakeService struct {
	result    inter.Result
	fromCache bool
	err       error
	lastReq   inter.Request
}

func (f *fakeService) GetVp(ctx context.Context, req inter.Request) (inter.Result, bool, error) {
	f.lastReq = req
	return f.result, f.fromCache, f.err
}

func (f *fakeService) Validate(ctx context.Context, req inter.ValidateRequest) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return req.Validation == "basic", nil
}

func newTestServer(svc Service) *httptest.Server {
	log, _ := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	s := NewServer(Config{Version: "1.0.0", Strategies: []string{"erc20-balance-of"}, Gatherer: reg}, svc, log, metrics.New(reg))
	return httptest.NewServer(s.Handler())
}

func post(t *testing.T, url, body string) (int, map[string]interface{}) {
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestServer_GetVp(t *testing.T) {
	require := require.New(t)

	svc := &fakeService{
		result:    inter.Result{VP: 150.5, VPByStrategy: []float64{150.5}, VPState: inter.StateFinal},
		fromCache: true,
	}
	srv := newTestServer(svc)
	defer srv.Close()

	status, body := post(t, srv.URL, `{"jsonrpc":"2.0","method":"get_vp","id":7,"params":{
		"address":"0x91fd2c8d24767db4ece7069aa27832ffaf8590f3","network":"1","snapshot":1000,"space":"ens.eth",
		"strategies":[{"name":"erc20-balance-of","params":{"decimals":18}}]}}`)

	require.Equal(http.StatusOK, status)
	require.Equal("2.0", body["jsonrpc"])
	require.Equal(float64(7), body["id"])
	require.Equal(true, body["cache"])
	require.Equal(map[string]interface{}{
		"vp":             150.5,
		"vp_by_strategy": []interface{}{150.5},
		"vp_state":       "final",
	}, body["result"])
	require.Equal(inter.BlockAt(1000), svc.lastReq.Snapshot)
}

func TestServer_Validate(t *testing.T) {
	srv := newTestServer(&fakeService{})
	defer srv.Close()

	status, body := post(t, srv.URL, `{"jsonrpc":"2.0","method":"validate","id":"a","params":{"validation":"basic","author":"0x91fd2c8d24767db4ece7069aa27832ffaf8590f3"}}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["result"])
	require.Equal(t, false, body["cache"])
	require.Equal(t, "a", body["id"])
}

func TestServer_Errors(t *testing.T) {
	tests := []struct {
		name     string
		svcErr   error
		body     string
		wantCode int
		wantData string
	}{
		{
			name:     "rejected",
			svcErr:   inter.Rejected("something wrong with the strategies"),
			body:     `{"method":"get_vp","id":1,"params":{"network":"1319"}}`,
			wantCode: http.StatusBadRequest,
			wantData: "something wrong with the strategies",
		},
		{
			name:     "not found",
			svcErr:   inter.NotFound("Validation not found"),
			body:     `{"method":"validate","id":1,"params":{"validation":"nope"}}`,
			wantCode: http.StatusNotFound,
			wantData: "Validation not found",
		},
		{
			name:     "upstream",
			svcErr:   inter.Upstream(errors.New("connection refused"), "provider"),
			body:     `{"method":"get_vp","id":1,"params":{"network":"1"}}`,
			wantCode: http.StatusInternalServerError,
			wantData: "provider: connection refused",
		},
		{
			name:     "unknown method",
			body:     `{"method":"get_scores","id":1,"params":{}}`,
			wantCode: http.StatusNotFound,
			wantData: `wrong method "get_scores"`,
		},
		{
			name:     "missing params",
			body:     `{"method":"get_vp","id":1}`,
			wantCode: http.StatusBadRequest,
			wantData: "missing params",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeService{err: tt.svcErr})
			defer srv.Close()

			status, body := post(t, srv.URL, tt.body)
			require.Equal(t, tt.wantCode, status)

			rpcErr := body["error"].(map[string]interface{})
			require.Equal(t, float64(tt.wantCode), rpcErr["code"])
			require.Equal(t, "unauthorized", rpcErr["message"])
			require.Equal(t, tt.wantData, rpcErr["data"])
		})
	}
}

func TestServer_InfoAndMetrics(t *testing.T) {
	require := require.New(t)

	srv := newTestServer(&fakeService{})
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(err)
	var info map[string]interface{}
	require.NoError(json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()
	require.Equal("1.0.0", info["version"])

	post(t, srv.URL, `{"method":"validate","id":1,"params":{}}`)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"cloudflare first", map[string]string{"Cf-Connecting-Ip": "1.1.1.1", "X-Real-Ip": "2.2.2.2"}, "9.9.9.9:1234", "1.1.1.1"},
		{"real ip", map[string]string{"X-Real-Ip": "2.2.2.2"}, "9.9.9.9:1234", "2.2.2.2"},
		{"forwarded list", map[string]string{"X-Forwarded-For": " 3.3.3.3, 10.0.0.1"}, "9.9.9.9:1234", "3.3.3.3"},
		{"socket", nil, "9.9.9.9:1234", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			require.Equal(t, tt.want, ClientIP(r))
		})
	}
}

func TestServer_CORS(t *testing.T) {
	srv := newTestServer(&fakeService{})
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://snapshot.box")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
