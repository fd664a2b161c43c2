package webserver

import (
	"net/http"

	"github.com/gin-gonic/gin/render"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// ExtJSON renders its Data as relaxed MongoDB Extended JSON. Use it for
// anything that holds BSON values that plain JSON would mangle, like
// ObjectIDs or 64-bit integers.
type ExtJSON struct {
	Data any
}

var _ render.Render = ExtJSON{}

var extJSONContentType = []string{"application/json; charset=utf-8"}

func (r ExtJSON) Render(w http.ResponseWriter) error {
	r.WriteContentType(w)

	body, err := bson.MarshalExtJSON(r.Data, false, false)
	if err != nil {
		return errors.Wrap(err, "failed to render extended JSON")
	}

	_, err = w.Write(body)

	return errors.Wrap(err, "failed to write response")
}

func (r ExtJSON) WriteContentType(w http.ResponseWriter) {
	header := w.Header()
	if val := header["Content-Type"]; len(val) == 0 {
		header["Content-Type"] = extJSONContentType
	}
}
