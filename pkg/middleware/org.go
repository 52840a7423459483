package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/onramp/pkg/httputil"
	"github.com/platinummonkey/onramp/pkg/orgs"
)

// OrgResolver maps a request onto the organization it acts on
type OrgResolver func(r *http.Request) (int64, error)

// OrganizationLookup is the subset of orgs.Service needed to resolve owners
type OrganizationLookup interface {
	GetSite(ctx context.Context, id int64) (*orgs.Site, error)
	OrganizationForAgent(ctx context.Context, agentID int64) (int64, error)
}

// OrgFromSite resolves the organization owning the site in a path parameter
func OrgFromSite(lookup OrganizationLookup, param string) OrgResolver {
	return func(r *http.Request) (int64, error) {
		siteID, err := httputil.ParsePathInt64(r, param)
		if err != nil {
			return 0, err
		}
		site, err := lookup.GetSite(r.Context(), siteID)
		if err != nil {
			return 0, err
		}
		return site.OrganizationID, nil
	}
}

// OrgFromAgent resolves the organization owning the agent in a path parameter
func OrgFromAgent(lookup OrganizationLookup, param string) OrgResolver {
	return func(r *http.Request) (int64, error) {
		agentID, err := httputil.ParsePathInt64(r, param)
		if err != nil {
			return 0, err
		}
		return lookup.OrganizationForAgent(r.Context(), agentID)
	}
}
