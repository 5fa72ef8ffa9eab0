// Package application contém os casos de uso de rate limit e limite de
// concorrência, sem conhecer net/http.
//
// Ex.: Service.Decide(key) aplica a Rule configurada e devolve uma Decision.
package application
