package source

import (
	"net/http"

	"github.com/nao1215/idhunt/internal/model"
)

// Builtin returns the hand-written sources probed by every run, sorted by name.
// Username sources come first, followed by email sources.
func Builtin() []Descriptor {
	return []Descriptor{
		{
			Name:        "aboutme",
			Kind:        KindScraper,
			Targets:     model.KindUsername,
			URLTemplate: "https://about.me/" + Placeholder,
			Category:    "social",
			Rule:        Rule{MissingCodes: []int{http.StatusNotFound, http.StatusGone}},
		},
		{
			Name:        "gist",
			Kind:        KindScraper,
			Targets:     model.KindUsername,
			URLTemplate: "https://gist.github.com/" + Placeholder,
			Category:    "coding",
			Rule:        Rule{MissingCodes: []int{http.StatusNotFound}},
		},
		{
			Name:        "github",
			Kind:        KindGitHubAPI,
			Targets:     model.KindUsername,
			URLTemplate: "https://api.github.com/users/" + Placeholder,
			ProfileURL:  "https://github.com/" + Placeholder,
			Headers: map[string]string{
				"Accept":               "application/vnd.github+json",
				"X-GitHub-Api-Version": "2022-11-28",
			},
			Category: "coding",
		},
		{
			Name:        "gitlab",
			Kind:        KindScraper,
			Targets:     model.KindUsername,
			URLTemplate: "https://gitlab.com/" + Placeholder,
			Category:    "coding",
			Rule: Rule{
				MissingCodes:   []int{http.StatusNotFound},
				MissingPattern: "Sign in · GitLab",
			},
		},
		{
			Name:        "keybase",
			Kind:        KindScraper,
			Targets:     model.KindUsername,
			URLTemplate: "https://keybase.io/" + Placeholder,
			Category:    "tech",
			Rule:        Rule{MissingCodes: []int{http.StatusNotFound}},
		},
		{
			Name:        "pinterest",
			Kind:        KindScraper,
			Targets:     model.KindUsername,
			URLTemplate: "https://www.pinterest.com/" + Placeholder + "/",
			Category:    "social",
			Rule: Rule{
				MissingCodes:   []int{http.StatusNotFound},
				MissingPattern: "User not found",
			},
		},
		{
			Name:        "telegram",
			Kind:        KindScraper,
			Targets:     model.KindUsername,
			URLTemplate: "https://t.me/" + Placeholder,
			Category:    "social",
			Rule: Rule{
				MissingCodes:       []int{http.StatusNotFound},
				MissingTitlePrefix: "Telegram: Contact @",
				RequireOGTitle:     true,
			},
		},
		{
			Name:        "twitch",
			Kind:        KindScraper,
			Targets:     model.KindUsername,
			URLTemplate: "https://www.twitch.tv/" + Placeholder,
			Category:    "gaming",
			Rule: Rule{
				MissingCodes:   []int{http.StatusNotFound},
				RequireOGTitle: true,
			},
		},
		{
			Name:           "gravatar",
			Kind:           KindGravatarAPI,
			Targets:        model.KindEmail,
			URLTemplate:    "https://en.gravatar.com/" + Placeholder + ".json",
			ProfileURL:     "https://gravatar.com/" + Placeholder,
			Category:       "social",
			InputOperation: OpMD5,
		},
	}
}
