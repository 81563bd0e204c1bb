package log

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// ProxyResponseWriter captures the status code written by a handler.
type ProxyResponseWriter struct {
	Origin     http.ResponseWriter
	StatusCode int
	Written    int
}

func (w *ProxyResponseWriter) Header() http.Header {
	return w.Origin.Header()
}

func (w *ProxyResponseWriter) Write(raw []byte) (int, error) {
	if w.StatusCode == 0 {
		w.StatusCode = http.StatusOK
	}
	written, err := w.Origin.Write(raw)
	w.Written += written
	return written, err
}

func (w *ProxyResponseWriter) WriteHeader(statusCode int) {
	w.StatusCode = statusCode
	w.Origin.WriteHeader(statusCode)
}

// Hijack delegates to the origin writer so websocket upgrades work behind
// the logging decorator.
func (w *ProxyResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.Origin.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("Origin response writer cannot be hijacked.")
	}
	if w.StatusCode == 0 {
		w.StatusCode = http.StatusSwitchingProtocols
	}
	return hijacker.Hijack()
}

// LoggedHandler automatically logs http response/request.
type LoggedHandler struct {
	Tags       map[string]interface{}
	OriginFunc http.Handler
}

func (h *LoggedHandler) ServeHTTP(writer http.ResponseWriter, req *http.Request) {
	proxy := &ProxyResponseWriter{Origin: writer}
	begin := time.Now()
	h.OriginFunc.ServeHTTP(proxy, req)

	fields := logrus.Fields{
		"method":   req.Method,
		"path":     req.URL.Path,
		"remote":   req.RemoteAddr,
		"status":   proxy.StatusCode,
		"duration": time.Since(begin).String(),
	}
	for tag, value := range h.Tags {
		fields[tag] = value
	}
	logrus.WithFields(fields).Info("http request")
}

// Decorate and attach log system to HandlerFunc.
// Return new HandlerFunc
func LogHandler(handlerFunc http.Handler) *LoggedHandler {
	return TagLogHandler(handlerFunc, map[string]interface{}{})
}

// Decorate and attach log system to HandlerFunc with extra log tags.
func TagLogHandler(handlerFunc http.Handler, tags map[string]interface{}) *LoggedHandler {
	return &LoggedHandler{
		Tags:       tags,
		OriginFunc: handlerFunc,
	}
}
