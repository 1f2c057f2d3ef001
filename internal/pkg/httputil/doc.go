// Package httputil holds the JSON envelope helpers shared by the API
// handlers so every route answers with the same error shape.
package httputil
