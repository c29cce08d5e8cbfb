package handler

import (
	"encoding/base64"

	"github.com/asaskevich/govalidator"

	dErrors "github.com/Space2024/chitenv/pkg/domain-errors"
)

const maxBranchLen = 5

// DecodeBranch resolves the branch code embedded in the URL. The code is
// base64-encoded twice in the link printed on branch posters; both standard
// and unpadded encodings occur in the wild. The decoded code must be 1-5
// alphanumeric characters.
func DecodeBranch(param string) (string, error) {
	first, err := decodeBase64(param)
	if err != nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid branch link")
	}
	second, err := decodeBase64(string(first))
	if err != nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid branch link")
	}
	branch := string(second)
	if len(branch) == 0 || len(branch) > maxBranchLen || !govalidator.IsAlphanumeric(branch) {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid branch link")
	}
	return branch, nil
}

// EncodeBranch is the inverse of DecodeBranch, used when minting links.
func EncodeBranch(branch string) string {
	inner := base64.StdEncoding.EncodeToString([]byte(branch))
	return base64.StdEncoding.EncodeToString([]byte(inner))
}

func decodeBase64(s string) ([]byte, error) {
	if d, err := base64.StdEncoding.DecodeString(s); err == nil {
		return d, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
