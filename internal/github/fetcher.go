package github

import (
	"context"
	"fmt"

	gogithub "github.com/google/go-github/v60/github"
)

const fetchPageSize = 100

// FetchIssues retrieves issues (open and closed) from a repository with
// pagination, skipping pull requests. A limit of 0 means no limit. The order
// returned by the API is preserved.
func FetchIssues(ctx context.Context, client *gogithub.Client, owner, repo string, limit int) ([]Issue, error) {
	opts := &gogithub.IssueListByRepoOptions{
		State: "all",
		ListOptions: gogithub.ListOptions{
			PerPage: fetchPageSize,
		},
	}

	var issues []Issue
	for {
		page, resp, err := client.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing issues for %s/%s: %w", owner, repo, err)
		}

		for _, ghIssue := range page {
			if ghIssue.PullRequestLinks != nil {
				continue // the issues API also returns PRs
			}
			issues = append(issues, convertIssue(ghIssue))
			if limit > 0 && len(issues) >= limit {
				return issues, nil
			}
		}

		if resp.NextPage == 0 {
			return issues, nil
		}
		opts.ListOptions.Page = resp.NextPage
	}
}

// FetchIssue retrieves a single issue by number.
func FetchIssue(ctx context.Context, client *gogithub.Client, owner, repo string, number int) (Issue, error) {
	ghIssue, _, err := client.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return Issue{}, fmt.Errorf("fetching issue #%d: %w", number, err)
	}
	if ghIssue.PullRequestLinks != nil {
		return Issue{}, fmt.Errorf("#%d is a pull request, not an issue", number)
	}
	return convertIssue(ghIssue), nil
}

func convertIssue(gh *gogithub.Issue) Issue {
	issue := Issue{
		Number: gh.GetNumber(),
		Title:  gh.GetTitle(),
		Body:   gh.GetBody(),
		State:  gh.GetState(),
		URL:    gh.GetHTMLURL(),
	}
	for _, label := range gh.Labels {
		issue.Labels = append(issue.Labels, label.GetName())
	}
	return issue
}
