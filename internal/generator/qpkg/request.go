package qpkg

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/ralt/qpkgrepo/internal/models"
)

// Query parameters understood by the feed
const (
	ParamModel    = "model"
	ParamPlatform = "platform"
	Param64Bit    = "64bit"
)

// Request selects what a manifest publishes
type Request struct {
	// Models are the platform identifiers emitted in every item
	Models []string

	// Architecture filters the published packages
	Architecture models.Architecture
}

// ParseRequest turns query values into a Request. Model identifiers may be
// repeated or comma separated; spaces are restored to '+' since query
// decoding turns '+' into a space. Without models the defaults are used.
func ParseRequest(values url.Values, defaultPlatforms []string) Request {
	var platformModels []string
	for _, value := range values[ParamModel] {
		for _, m := range strings.Split(value, ",") {
			if m == "" {
				continue
			}
			platformModels = append(platformModels, strings.ReplaceAll(m, " ", "+"))
		}
	}
	if len(platformModels) == 0 {
		platformModels = append([]string(nil), defaultPlatforms...)
	}

	return Request{
		Models:       platformModels,
		Architecture: RequestArchitecture(values.Get(ParamPlatform), parseFlag(values.Get(Param64Bit))),
	}
}

// RequestArchitecture maps a platform hint to an architecture, defaulting to arm64
func RequestArchitecture(platform string, is64Bit bool) models.Architecture {
	if platform == "" {
		return models.DefaultArchitecture
	}
	arch, ok := models.InferArchitecture(platform, is64Bit)
	if !ok {
		return models.DefaultArchitecture
	}
	return arch
}

func parseFlag(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "y", "on":
		return true
	}
	b, _ := strconv.ParseBool(value)
	return b
}
