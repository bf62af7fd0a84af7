package adapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nao1215/idhunt/internal/model"
	"github.com/nao1215/idhunt/internal/probe"
	"github.com/nao1215/idhunt/internal/source"
)

// githubUser is the subset of the GitHub users API response kept as payload.
type githubUser struct {
	Login           string `json:"login"`
	Name            string `json:"name,omitempty"`
	Company         string `json:"company,omitempty"`
	Blog            string `json:"blog,omitempty"`
	Location        string `json:"location,omitempty"`
	Email           string `json:"email,omitempty"`
	Bio             string `json:"bio,omitempty"`
	TwitterUsername string `json:"twitter_username,omitempty"`
	AvatarURL       string `json:"avatar_url,omitempty"`
	HTMLURL         string `json:"html_url,omitempty"`
	PublicRepos     int    `json:"public_repos"`
	Followers       int    `json:"followers"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// normalizeGitHub interprets the GitHub users API. A login equal to the
// subject is a certain hit. The linked Twitter handle and the public email
// are reported as discoveries.
func normalizeGitHub(subject model.Identifier, desc source.Descriptor, res *probe.Result) Verdict {
	switch res.StatusCode {
	case http.StatusNotFound:
		return Verdict{Outcome: model.OutcomeNotFound, Confidence: confidenceCertain, Payload: statusPayload{StatusCode: res.StatusCode}}
	case http.StatusForbidden:
		return Verdict{Outcome: model.OutcomeError, Payload: statusPayload{StatusCode: res.StatusCode}, Error: "GitHub API rate limit exceeded (HTTP 403)"}
	}
	if v, ok := statusVerdict(res.StatusCode); ok {
		return v
	}
	if res.StatusCode != http.StatusOK {
		return Verdict{Outcome: model.OutcomeError, Payload: statusPayload{StatusCode: res.StatusCode}, Error: fmt.Sprintf("unexpected status %d", res.StatusCode)}
	}

	var u githubUser
	if err := json.Unmarshal(res.Body, &u); err != nil || u.Login == "" {
		return Verdict{Outcome: model.OutcomeError, Payload: statusPayload{StatusCode: res.StatusCode}, Error: "malformed GitHub API response"}
	}

	v := Verdict{Outcome: model.OutcomeFound, Confidence: confidenceCertain, Payload: u}
	if !strings.EqualFold(u.Login, desc.Account(subject)) {
		v.Outcome = model.OutcomeAmbiguous
		v.Confidence = confidenceLow
		v.Signals = []model.Signal{model.SignalRedirected}
		return v
	}

	if handle := strings.TrimSpace(u.TwitterUsername); handle != "" {
		if id, err := model.NewUsername(handle); err == nil {
			v.Discovered = append(v.Discovered, Discovery{Identifier: id, Detail: "twitter_username on GitHub profile " + u.Login})
		}
	}
	if email := strings.TrimSpace(u.Email); email != "" {
		if id, err := model.NewEmail(email); err == nil {
			v.Discovered = append(v.Discovered, Discovery{Identifier: id, Detail: "public email on GitHub profile " + u.Login})
		}
	}
	return v
}

type gravatarResponse struct {
	Entry []gravatarEntry `json:"entry"`
}

type gravatarEntry struct {
	PreferredUsername string            `json:"preferredUsername,omitempty"`
	DisplayName       string            `json:"displayName,omitempty"`
	ProfileURL        string            `json:"profileUrl,omitempty"`
	ThumbnailURL      string            `json:"thumbnailUrl,omitempty"`
	AboutMe           string            `json:"aboutMe,omitempty"`
	CurrentLocation   string            `json:"currentLocation,omitempty"`
	Accounts          []gravatarAccount `json:"accounts,omitempty"`
}

type gravatarAccount struct {
	Shortname string `json:"shortname,omitempty"`
	Username  string `json:"username,omitempty"`
	URL       string `json:"url,omitempty"`
}

// normalizeGravatar interprets a Gravatar profile lookup by email hash.
// The hash is an exact key, so an entry is a certain hit. The preferred
// username is reported as a discovery.
func normalizeGravatar(_ model.Identifier, _ source.Descriptor, res *probe.Result) Verdict {
	if res.StatusCode == http.StatusNotFound {
		return Verdict{Outcome: model.OutcomeNotFound, Confidence: confidenceHigh, Payload: statusPayload{StatusCode: res.StatusCode}}
	}
	if v, ok := statusVerdict(res.StatusCode); ok {
		return v
	}
	if res.StatusCode != http.StatusOK {
		return Verdict{Outcome: model.OutcomeError, Payload: statusPayload{StatusCode: res.StatusCode}, Error: fmt.Sprintf("unexpected status %d", res.StatusCode)}
	}

	var r gravatarResponse
	if err := json.Unmarshal(res.Body, &r); err != nil {
		return Verdict{Outcome: model.OutcomeError, Payload: statusPayload{StatusCode: res.StatusCode}, Error: "malformed Gravatar response"}
	}
	if len(r.Entry) == 0 {
		return Verdict{Outcome: model.OutcomeNotFound, Confidence: confidenceGood, Payload: statusPayload{StatusCode: res.StatusCode}}
	}

	entry := r.Entry[0]
	v := Verdict{Outcome: model.OutcomeFound, Confidence: confidenceHigh, Payload: entry}
	if name := strings.TrimSpace(entry.PreferredUsername); name != "" {
		if id, err := model.NewUsername(name); err == nil {
			v.Discovered = append(v.Discovered, Discovery{Identifier: id, Detail: "preferredUsername on Gravatar profile"})
		}
	}
	return v
}
