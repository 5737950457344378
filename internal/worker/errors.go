package worker

import "errors"

var errMalformed = errors.New("malformed turn payload")

func isMalformed(err error) bool {
	return errors.Is(err, errMalformed)
}
