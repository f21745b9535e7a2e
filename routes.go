package main

import (
	"github.com/gorilla/mux"
)

// setupRoutes configures all HTTP routes for the API
func setupRoutes(router *mux.Router) {
	// Lyrics endpoints - "/" kept for compatibility with existing clients
	router.HandleFunc("/", getLyrics)
	router.HandleFunc("/getLyrics", getLyrics)

	// Health and stats endpoints
	router.HandleFunc("/health", getHealthStatus)
	router.HandleFunc("/stats", getStats)
}
