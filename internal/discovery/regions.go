package discovery

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Built-in nationwide coverage: all 25 Seoul districts plus the major
// metropolitan cities. Used by nationwide-auto runs unless a regions file
// overrides the list.
var defaultRegions = []string{
	// Seoul districts
	"강남구", "강동구", "강북구", "강서구", "관악구",
	"광진구", "구로구", "금천구", "노원구", "도봉구",
	"동대문구", "동작구", "마포구", "서대문구", "서초구",
	"성동구", "성북구", "송파구", "양천구", "영등포구",
	"용산구", "은평구", "종로구", "중구", "중랑구",
	// Metropolitan cities and large suburbs
	"부산", "대구", "인천", "광주", "대전", "울산",
	"수원", "성남", "고양", "부천",
}

// regionsFile is the YAML shape of a regions override file.
type regionsFile struct {
	Regions []string `yaml:"regions"`
}

// Regions returns the region list for a nationwide run: the contents of the
// override file when path is non-empty, the built-in list otherwise.
func Regions(path string) ([]string, error) {
	if path == "" {
		out := make([]string, len(defaultRegions))
		copy(out, defaultRegions)
		return out, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: read regions file %s", path)
	}
	var parsed regionsFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, eris.Wrapf(err, "discovery: parse regions file %s", path)
	}
	if len(parsed.Regions) == 0 {
		return nil, eris.Errorf("discovery: regions file %s lists no regions", path)
	}
	return parsed.Regions, nil
}
