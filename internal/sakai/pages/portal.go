package pages

import (
	"strings"

	"sakaibot/internal/sakai/model"
	"sakaibot/internal/sakai/render"
	"sakaibot/lib/htmlutil"
)

// LoginForm is the gateway's login form.
type LoginForm struct {
	Frame    render.FramePath
	Username string
	Password string
	Form     string
}

const (
	loginUsername = "#eid"
	loginPassword = "#pw"
	// the portal's reply to wrong credentials
	InvalidLoginMarker = "Invalid login"
	logoutLink         = "a#loginLink1, a[href*='/portal/logout']"
)

func FindLoginForm(page *render.Page) (LoginForm, error) {
	path, doc, err := landmark(page, loginUsername)
	if err != nil {
		return LoginForm{}, err
	}
	if doc.Find(loginPassword).Length() == 0 {
		return LoginForm{}, drift("login form without %s", loginPassword)
	}
	form := "form"
	if id, ok := doc.Find(loginUsername).Closest("form").Attr("id"); ok && id != "" {
		form = "form#" + id
	}
	return LoginForm{
		Frame:    path,
		Username: loginUsername,
		Password: loginPassword,
		Form:     form,
	}, nil
}

// LoginRejected reports whether the portal answered with its invalid login
// marker.
func LoginRejected(page *render.Page) bool {
	return ContainsText(page, InvalidLoginMarker)
}

// LogoutLink returns the portal's logout anchor.
func LogoutLink(page *render.Page) (string, bool) {
	path, ok := FindFrame(page, logoutLink)
	if !ok {
		return "", false
	}
	anchors := htmlutil.GetAnchors(page.Find(path, logoutLink), nil)
	if len(anchors) == 0 {
		return "", false
	}
	return htmlutil.Resolve(page.Frame(path).URL, anchors[0].Href), true
}

// toolLink returns the href of the first anchor carrying the tool's icon
// class, resolved against its document.
func toolLink(page *render.Page, class string) string {
	selector := "a." + class
	path, ok := FindFrame(page, selector)
	if !ok {
		return ""
	}
	href, _ := page.Find(path, selector).First().Attr("href")
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	return htmlutil.Resolve(page.Frame(path).URL, href)
}

const (
	membershipIcon  = "icon-sakai-membership"
	assignmentsIcon = "icon-sakai-assignment-grades"
	siteInfoIcon    = "icon-sakai-siteinfo"
	testsIcon       = "icon-sakai-samigo"
	usersIcon       = "icon-sakai-users"
)

// MembershipLink is the "Membership" tool of the user's home site, it lists
// every worksite the user belongs to.
func MembershipLink(page *render.Page) (string, error) {
	link := toolLink(page, membershipIcon)
	if link == "" {
		return "", drift("a.%s not found", membershipIcon)
	}
	return link, nil
}

// UsersLink is the "Users" tool of the administration workspace.
func UsersLink(page *render.Page) (string, error) {
	link := toolLink(page, usersIcon)
	if link == "" {
		return "", drift("a.%s not found", usersIcon)
	}
	return link, nil
}

// SiteTools reads the tool menu of a worksite.
func SiteTools(page *render.Page) model.SiteTools {
	return model.SiteTools{
		Assignments: toolLink(page, assignmentsIcon),
		SiteInfo:    toolLink(page, siteInfoIcon),
		Tests:       toolLink(page, testsIcon),
		Users:       toolLink(page, usersIcon),
	}
}
