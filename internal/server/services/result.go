package services

import (
	"errors"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
)

// Result is the uniform outcome handed to the routing layer.
type Result struct {
	OK      bool
	Kind    common.Kind
	Message string
}

// ResultOf folds err into a Result. Errors that are not domain errors and
// not StoreErrors get a generic message so driver details never leak.
func ResultOf(err error, okMessage string) Result {
	if err == nil {
		return Result{OK: true, Kind: common.KindNone, Message: okMessage}
	}

	kind := common.KindOf(err)
	msg := err.Error()
	if kind == common.KindStore {
		var se *common.StoreError
		if errors.As(err, &se) {
			msg = se.Error()
		} else {
			msg = "internal error"
		}
	}
	return Result{Kind: kind, Message: msg}
}
