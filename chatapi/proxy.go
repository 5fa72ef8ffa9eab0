package chatapi

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/sirupsen/logrus"
)

// NewUpstreamProxy cria o reverse proxy para o serviço de IA. As respostas
// são repassadas sem buffer (FlushInterval -1) para não segurar o stream do
// chat.
func NewUpstreamProxy(target *url.URL, log logrus.FieldLogger) *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.FlushInterval = -1
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.WithError(err).WithField("path", r.URL.Path).Error("upstream request failed")
		writeError(w, http.StatusBadGateway, "Bad gateway")
	}
	return proxy
}
