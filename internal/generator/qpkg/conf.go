package qpkg

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Keys recognized in a package's auxiliary .conf file
const (
	confCategory     = "category"
	confType         = "type"
	confLanguage     = "language"
	confTutorialLink = "tutoriallink"
	confChangelog    = "changelog"
	confForumLink    = "forumlink"
	confSnapshot     = "snapshot"
	confBannerImg    = "bannerimg"
)

// confValueCutset is trimmed from both ends of every .conf value
const confValueCutset = " \t\n\r\x00\x0B\""

// loadConfFile reads {name}.conf from the auxiliary files. A missing or
// unreadable file yields an empty map.
func loadConfFile(packageName string, others []string) map[string]string {
	want := packageName + ".conf"
	for _, other := range others {
		if filepath.Base(other) != want {
			continue
		}

		data, err := os.ReadFile(other)
		if err != nil {
			logrus.Debugf("Ignoring unreadable configuration %s: %v", other, err)
			return map[string]string{}
		}
		return ParseConf(string(data))
	}
	return map[string]string{}
}

// ParseConf parses key=value lines. Keys are lowercased; values are trimmed
// of whitespace and double quotes. Lines without '=' are ignored.
func ParseConf(data string) map[string]string {
	conf := make(map[string]string)

	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		conf[key] = strings.Trim(value, confValueCutset)
	}

	return conf
}
