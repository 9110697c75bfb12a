package http

import (
	"net/http"

	"github.com/programme-lv/anytime/httpjson"
	"github.com/programme-lv/anytime/logger"
	"github.com/programme-lv/anytime/submsrvc"
)

// backupSubmissions dumps the newest submissions. It exposes personal
// data and is only routed when explicitly enabled.
func (httpserver *HttpServer) backupSubmissions(w http.ResponseWriter, r *http.Request) {
	list, err := httpserver.submSrvc.ListSubms(r.Context(), submsrvc.MaxListLimit)
	if err != nil {
		httpjson.HandleError(logger.FromContext(r.Context()), w, err)
		return
	}

	subms := make([]Submission, len(list.Subms))
	for i, s := range list.Subms {
		subms[i] = mapSubm(s)
	}
	httpjson.WriteJson(w, http.StatusOK, backupResponse{
		TotalSubmissions: len(subms),
		Submissions:      subms,
		StorageMethod:    string(list.StorageMethod),
		Timestamp:        nowString(),
	})
}
