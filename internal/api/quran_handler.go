package api

import (
	"net/http"

	"github.com/samely/samely/internal/quran"
)

// surahsHandler serves the surah catalogue clients use to build locator
// pickers.
func surahsHandler() http.HandlerFunc {
	catalogue := map[string]interface{}{"surahs": quran.All()}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=86400")
		writeJSON(w, http.StatusOK, catalogue)
	}
}
