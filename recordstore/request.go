package recordstore

import (
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-formsync/core"
	"github.com/goliatone/go-formsync/transport"
)

func jsonRequest(method string, endpoint string, payload any) (transport.Request, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return transport.Request{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "recordstore: encode request body").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.ErrorBadInput)
	}
	return transport.Request{Method: method, URL: endpoint, Body: raw}, nil
}
