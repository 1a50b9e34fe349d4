package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"DocrestAPI/internal/httperr"
)

// corsPolicy описывает CORS-ответы: разрешённые источники и методы.
type corsPolicy struct {
	allowOrigin      string
	allowCredentials bool
	methods          []string
}

// withCORS применяет политику с методами resourceRoutes.
func withCORS(allowOrigin string, allowCredentials bool, h http.HandlerFunc) http.HandlerFunc {
	return corsPolicy{
		allowOrigin:      allowOrigin,
		allowCredentials: allowCredentials,
		methods:          resourceMethods(),
	}.wrap(h)
}

// wrap добавляет CORS-заголовки и отвечает на preflight. Preflight с
// неизвестным методом получает 405.
func (p corsPolicy) wrap(h http.HandlerFunc) http.HandlerFunc {
	allowMethods := strings.Join(append(slices.Clone(p.methods), http.MethodOptions), ", ")
	return func(w http.ResponseWriter, r *http.Request) {
		originValue, varyOrigin := resolveAllowOrigin(p.allowOrigin, p.allowCredentials, r.Header.Get("Origin"))
		if originValue != "" {
			w.Header().Set("Access-Control-Allow-Origin", originValue)
		}
		if varyOrigin {
			w.Header().Set("Vary", "Origin")
		}
		if p.allowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", allowMethods)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method != http.MethodOptions {
			h(w, r)
			return
		}
		if want := r.Header.Get("Access-Control-Request-Method"); want != "" && !p.allows(want) {
			writeError(w, httperr.MethodNotAllowed(fmt.Sprintf("Method %s is not served", want),
				httperr.WithData(map[string]any{"allowed": p.methods})))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (p corsPolicy) allows(method string) bool {
	return slices.Contains(p.methods, strings.ToUpper(strings.TrimSpace(method)))
}

func writeError(w http.ResponseWriter, e *httperr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Code)
	_ = json.NewEncoder(w).Encode(e)
}

// resolveAllowOrigin: "*" или пустая настройка пускает всех; список через
// запятую пускает только перечисленные источники.
func resolveAllowOrigin(allowOrigin string, allowCredentials bool, requestOrigin string) (value string, varyOrigin bool) {
	origins := parseOrigins(allowOrigin)
	if len(origins) == 0 {
		return "*", false
	}

	if slices.Contains(origins, "*") {
		// с credentials браузер не примет "*", отражаем источник
		if allowCredentials && requestOrigin != "" {
			return requestOrigin, true
		}
		return "*", false
	}

	if requestOrigin == "" || !slices.Contains(origins, requestOrigin) {
		return "", true
	}
	return requestOrigin, true
}

func parseOrigins(allowOrigin string) []string {
	var res []string
	for _, p := range strings.Split(allowOrigin, ",") {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}
