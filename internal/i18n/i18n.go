package i18n

import (
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/iamwavecut/ngguard/resources"
)

const translationsPath = "i18n/translations.yml"

var state = struct {
	once         sync.Once
	translations map[string]map[string]string
}{}

func load() {
	state.translations = map[string]map[string]string{}
	content, err := resources.FS.ReadFile(translationsPath)
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load i18n")
		return
	}
	if err := yaml.Unmarshal(content, &state.translations); err != nil {
		log.WithField("error", err.Error()).Error("cant unmarshal i18n")
	}
}

// Get returns the translation of key, which is the English text itself.
func Get(key, lang string) string {
	lang = strings.ToUpper(lang)
	if lang == "" || lang == "EN" {
		return key
	}
	state.once.Do(load)
	if res, ok := state.translations[key][lang]; ok && res != "" {
		return res
	}
	log.WithField("key", key).WithField("lang", lang).Trace("no translation")
	return key
}

// N marks a key for extraction where the translation happens later through Get.
func N(key string) string {
	return key
}
