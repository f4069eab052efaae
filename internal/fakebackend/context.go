package fakebackend

import (
	"context"
	"net/http"
)

func withAccount(r *http.Request, a Account) context.Context {
	return context.WithValue(r.Context(), ctxKey{}, a)
}

func accountFrom(r *http.Request) Account {
	a, _ := r.Context().Value(ctxKey{}).(Account)
	return a
}
