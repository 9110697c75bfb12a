package submsrvc

import (
	"errors"
	"net/http"

	"github.com/programme-lv/anytime/srvcerror"
	"github.com/programme-lv/anytime/submstore"
)

const ErrCodeNameInvalid = "name_invalid"

func ErrNameInvalid() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeNameInvalid,
		"Name must be between 2 and 100 characters long",
	).SetHttpStatusCode(http.StatusUnprocessableEntity)
}

const ErrCodeEmailInvalid = "email_invalid"

func ErrEmailInvalid() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeEmailInvalid,
		"Valid email address required",
	).SetHttpStatusCode(http.StatusUnprocessableEntity)
}

const ErrCodeAnswerInvalid = "answer_invalid"

func ErrAnswerInvalid() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeAnswerInvalid,
		"Answer must be between 5 and 10000 characters long",
	).SetHttpStatusCode(http.StatusUnprocessableEntity)
}

const ErrCodeSubmissionRejected = "submission_rejected"

func ErrSubmissionRejected() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeSubmissionRejected,
		"The submission was rejected by the storage backend",
	).SetHttpStatusCode(http.StatusUnprocessableEntity)
}

const ErrCodeStorageUnavailable = "storage_unavailable"

func ErrStorageUnavailable() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeStorageUnavailable,
		"Storage is temporarily unavailable, please try again",
	).SetHttpStatusCode(http.StatusServiceUnavailable)
}

// storageErr maps a storage failure to the error shown to the client.
func storageErr(err error) *srvcerror.Error {
	if errors.Is(err, submstore.ErrRejected) {
		return ErrSubmissionRejected().SetDebug(err)
	}
	return ErrStorageUnavailable().SetDebug(err)
}
