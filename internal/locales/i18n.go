package locales

import (
	"embed"
	"encoding/json"
	"log"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed *.json
var localeFS embed.FS

var (
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
)

// Message IDs used across the worker.
const (
	MsgListingPublished = "ListingPublished"
	MsgListingExpired   = "ListingExpired"
	MsgListingApproved  = "ListingApproved"
	MsgListingRejected  = "ListingRejected"
	MsgSubmissionQueued = "SubmissionQueued"
	MsgRequiresOperator = "RequiresOperator"
	MsgUnknownListing   = "UnknownListing"
	MsgInvalidLifecycle = "InvalidLifecycle"
	MsgMediaAttached    = "MediaAttached"
	MsgTooManyMedia     = "TooManyMedia"
	MsgErrorGeneral     = "ErrorGeneral"
)

// Init initializes the i18n bundle by loading embedded language files
// and setting the default language.
func Init(defaultLangCode string) {
	var err error
	defaultLanguage, err = language.Parse(defaultLangCode)
	if err != nil {
		log.Printf("WARN: Failed to parse default language code '%s': %v. Falling back to English.", defaultLangCode, err)
		defaultLanguage = language.English
	}

	bundle = i18n.NewBundle(defaultLanguage)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	fs, err := localeFS.ReadDir(".")
	if err != nil {
		log.Fatalf("Failed to read embedded locales directory: %v", err)
	}

	loadedFiles := 0
	for _, file := range fs {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".json") {
			if _, err := bundle.LoadMessageFileFS(localeFS, file.Name()); err != nil {
				log.Printf("WARN: Failed to load message file '%s': %v", file.Name(), err)
			} else {
				loadedFiles++
			}
		}
	}
	if loadedFiles == 0 {
		log.Fatalf("No message files loaded from locales/")
	}
	log.Printf("i18n bundle initialized with %d file(s). Default language: %s", loadedFiles, defaultLanguage.String())
}

// NewLocalizer creates a localizer for the given language preferences.
func NewLocalizer(langPrefs ...string) *i18n.Localizer {
	if bundle == nil {
		log.Panicln("Attempted to create localizer before i18n bundle initialization.")
	}
	return i18n.NewLocalizer(bundle, langPrefs...)
}

// GetMessage retrieves and formats a message by its ID using the provided
// localizer, falling back to English and finally to the raw ID.
func GetMessage(localizer *i18n.Localizer, msgID string, templateData map[string]interface{}) string {
	config := &i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: templateData,
	}

	localizedMsg, err := localizer.Localize(config)
	if err != nil {
		log.Printf("ERROR: Failed to localize message ID '%s': %v. Falling back to English.", msgID, err)
		englishLocalizer := i18n.NewLocalizer(bundle, language.English.String())
		if fallbackMsg, fallbackErr := englishLocalizer.Localize(config); fallbackErr == nil {
			return fallbackMsg
		}
		return msgID
	}
	return localizedMsg
}
