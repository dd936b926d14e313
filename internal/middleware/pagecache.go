package middleware

import (
	"bytes"
	"log"
	"net/http"
	"time"

	"github.com/tripreport/backend/internal/cache"
	"github.com/tripreport/backend/internal/metrics"
)

type capturingWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *capturingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// PageCache serves anonymous GET requests from c and stores successful
// responses under their path so writes can invalidate every query variant.
func PageCache(c cache.PageCache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || GetUserID(r.Context()) != "" {
				next.ServeHTTP(w, r)
				return
			}

			key := r.URL.RequestURI()
			page, ok, err := c.Get(r.Context(), key)
			if err != nil {
				log.Printf("[PageCache] get key=%s error=%v", key, err)
				metrics.CacheLookups.WithLabelValues("error").Inc()
			}
			if ok {
				metrics.CacheLookups.WithLabelValues("hit").Inc()
				if page.ContentType != "" {
					w.Header().Set("Content-Type", page.ContentType)
				}
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				w.Write(page.Body)
				return
			}
			if err == nil {
				metrics.CacheLookups.WithLabelValues("miss").Inc()
			}

			w.Header().Set("X-Cache", "MISS")
			cw := &capturingWriter{ResponseWriter: w}
			next.ServeHTTP(cw, r)
			if cw.status != http.StatusOK {
				return
			}
			stored := &cache.Page{ContentType: w.Header().Get("Content-Type"), Body: cw.buf.Bytes()}
			if err := c.Set(r.Context(), r.URL.Path, key, stored, ttl); err != nil {
				log.Printf("[PageCache] set key=%s error=%v", key, err)
			}
		})
	}
}
