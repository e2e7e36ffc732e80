package intercept

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"
)

// NewStoreProxy returns a reverse proxy to the store at target with ic
// installed on its responses. Import downloads are requested without
// Accept-Encoding so the transport hands ic a decoded body.
func NewStoreProxy(target *url.URL, ic *Interceptor, log *zap.Logger) *httputil.ReverseProxy {
	if log == nil {
		log = zap.NewNop()
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			if ic.matcher.MatchURL(pr.Out.URL) {
				pr.Out.Header.Del("Accept-Encoding")
			}
		},
		ModifyResponse: ic.ModifyResponse,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("store unreachable", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, "store unreachable", http.StatusBadGateway)
		},
	}
}
