package auth

import (
	"fmt"
	"net/http"
)

func ManagerOnly(next http.Handler) http.Handler {
	hfn := func(w http.ResponseWriter, r *http.Request) {
		user, err := UserFromContext(r)
		if err != nil {
			writeAuthError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if !user.IsManager() {
			writeAuthError(w, fmt.Sprintf("user %v is not a manager", user.Username), http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(hfn)
}
