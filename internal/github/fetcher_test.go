package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	gogithub "github.com/google/go-github/v60/github"
)

func newTestClient(t *testing.T, handler http.Handler) *gogithub.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := gogithub.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatalf("parsing test server URL: %v", err)
	}
	client.BaseURL = base
	return client
}

func TestFetchIssues_PaginatesAndSkipsPullRequests(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widget/issues" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("state"); got != "all" {
			t.Errorf("state = %q, want all", got)
		}

		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", `<https://api.github.com/repos/acme/widget/issues?page=2>; rel="next"`)
			fmt.Fprint(w, `[
				{"number": 1, "title": "crash on startup", "body": "details", "state": "open",
				 "html_url": "https://github.com/acme/widget/issues/1",
				 "labels": [{"name": "bug"}]},
				{"number": 2, "title": "some PR", "state": "open",
				 "pull_request": {"url": "https://api.github.com/repos/acme/widget/pulls/2"}}
			]`)
		case "2":
			fmt.Fprint(w, `[
				{"number": 3, "title": "slow search", "body": "", "state": "closed",
				 "html_url": "https://github.com/acme/widget/issues/3"}
			]`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))

	issues, err := FetchIssues(context.Background(), client, "acme", "widget", 0)
	if err != nil {
		t.Fatalf("FetchIssues: %v", err)
	}

	if len(issues) != 2 {
		t.Fatalf("expected 2 issues (PR skipped), got %d: %+v", len(issues), issues)
	}
	if issues[0].Number != 1 || issues[1].Number != 3 {
		t.Errorf("wrong issues or order: %+v", issues)
	}
	first := issues[0]
	if first.Title != "crash on startup" || first.Body != "details" || first.State != "open" {
		t.Errorf("fields not mapped: %+v", first)
	}
	if first.URL != "https://github.com/acme/widget/issues/1" {
		t.Errorf("URL = %q", first.URL)
	}
	if len(first.Labels) != 1 || first.Labels[0] != "bug" {
		t.Errorf("labels = %v", first.Labels)
	}
}

func TestFetchIssues_Limit(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"number": 1, "title": "a", "state": "open"},
			{"number": 2, "title": "b", "state": "open"},
			{"number": 3, "title": "c", "state": "open"}
		]`)
	}))

	issues, err := FetchIssues(context.Background(), client, "acme", "widget", 2)
	if err != nil {
		t.Fatalf("FetchIssues: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues with limit, got %d", len(issues))
	}
}

func TestFetchIssues_APIError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}))

	if _, err := FetchIssues(context.Background(), client, "acme", "gone", 0); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestFetchIssue(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widget/issues/7" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"number": 7, "title": "login broken", "body": "cannot sign in",
			"state": "open", "html_url": "https://github.com/acme/widget/issues/7"}`)
	}))

	issue, err := FetchIssue(context.Background(), client, "acme", "widget", 7)
	if err != nil {
		t.Fatalf("FetchIssue: %v", err)
	}
	if issue.Number != 7 || issue.Title != "login broken" {
		t.Errorf("unexpected issue: %+v", issue)
	}
}

func TestFetchIssue_RejectsPullRequest(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number": 8, "title": "a PR", "state": "open",
			"pull_request": {"url": "https://api.github.com/repos/acme/widget/pulls/8"}}`)
	}))

	if _, err := FetchIssue(context.Background(), client, "acme", "widget", 8); err == nil {
		t.Fatal("expected error for pull request")
	}
}
