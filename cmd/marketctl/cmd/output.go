package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/go-market-client/posts"
	"github.com/jrsteele09/go-market-client/products"
	"github.com/jrsteele09/go-market-client/session"
	"github.com/jrsteele09/go-market-client/users"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// render writes v in the selected format. table is used for the table format.
func render(w io.Writer, format string, v any, table func(tw *tabwriter.Writer)) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(v), "[render] json")
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "[render] yaml")
		}
		return errors.Wrap(enc.Close(), "[render] yaml")
	default:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		table(tw)
		return errors.Wrap(tw.Flush(), "[render] table")
	}
}

type sessionView struct {
	State         string `json:"state" yaml:"state"`
	Email         string `json:"email,omitempty" yaml:"email,omitempty"`
	EmailVerified bool   `json:"emailVerified" yaml:"email_verified"`
	ResendIn      string `json:"resendIn,omitempty" yaml:"resend_in,omitempty"`
	Notice        string `json:"notice,omitempty" yaml:"notice,omitempty"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newSessionView(s session.Session, now time.Time) sessionView {
	v := sessionView{
		State:         s.State.String(),
		Email:         s.Email,
		EmailVerified: s.EmailVerified,
		Notice:        s.Notice,
	}
	if d := s.ResendIn(now); d > 0 {
		v.ResendIn = d.Round(time.Second).String()
	}
	if s.LastError != nil {
		v.Error = s.LastError.Error()
	}
	if s.FailureReason != "" && v.Error == "" {
		v.Error = s.FailureReason
	}
	return v
}

func renderSession(w io.Writer, s session.Session, now time.Time) error {
	v := newSessionView(s, now)
	return render(w, output, v, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "State:\t%s\n", v.State)
		if v.Email != "" {
			fmt.Fprintf(tw, "Email:\t%s\n", v.Email)
		}
		if v.ResendIn != "" {
			fmt.Fprintf(tw, "Resend in:\t%s\n", v.ResendIn)
		}
		if v.Notice != "" {
			fmt.Fprintf(tw, "Notice:\t%s\n", v.Notice)
		}
		if v.Error != "" {
			fmt.Fprintf(tw, "Error:\t%s\n", v.Error)
		}
	})
}

type productListView struct {
	Items       []products.Product `json:"items" yaml:"items"`
	Page        int                `json:"page,omitempty" yaml:"page,omitempty"`
	HasNextPage bool               `json:"hasNextPage" yaml:"has_next_page"`
}

func renderProducts(w io.Writer, v productListView) error {
	return render(w, output, v, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tTITLE\tPRICE\tLOCATION\tSELLER")
		for _, p := range v.Items {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\n", p.ID, p.Title, p.Price, placeName(p.Location), ownerName(p.Owner))
		}
		if v.HasNextPage {
			fmt.Fprintf(tw, "\n(page %d, more available)\n", v.Page)
		}
	})
}

func renderProduct(w io.Writer, p *products.Product) error {
	return render(w, output, p, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "ID:\t%s\n", p.ID)
		fmt.Fprintf(tw, "Title:\t%s\n", p.Title)
		fmt.Fprintf(tw, "Price:\t%.2f\n", p.Price)
		fmt.Fprintf(tw, "Description:\t%s\n", p.Description)
		fmt.Fprintf(tw, "Location:\t%s\n", placeName(p.Location))
		fmt.Fprintf(tw, "Seller:\t%s\n", ownerName(p.Owner))
		for i, img := range p.Images {
			fmt.Fprintf(tw, "Image %d:\t%s\n", i+1, img.URL)
		}
	})
}

type postListView struct {
	Items       []posts.Post `json:"items" yaml:"items"`
	Page        int          `json:"page,omitempty" yaml:"page,omitempty"`
	HasNextPage bool         `json:"hasNextPage" yaml:"has_next_page"`
}

func renderPosts(w io.Writer, v postListView) error {
	return render(w, output, v, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "PUBLISHED\tSOURCE\tTITLE")
		for _, p := range v.Items {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.PubDate, p.SourceID, p.Title)
		}
	})
}

func renderProfile(w io.Writer, p *users.Profile) error {
	return render(w, output, p, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "ID:\t%s\n", p.ID)
		fmt.Fprintf(tw, "Name:\t%s\n", p.FullName())
		fmt.Fprintf(tw, "Email:\t%s\n", p.Email)
		fmt.Fprintf(tw, "Verified:\t%t\n", p.IsEmailVerified)
		if p.ProfileImage != nil {
			fmt.Fprintf(tw, "Image:\t%s\n", p.ProfileImage.URL)
		}
	})
}

func placeName(l *products.Location) string {
	if l == nil {
		return "-"
	}
	return l.Name
}

func ownerName(o *products.Owner) string {
	if o == nil {
		return "-"
	}
	if name := strings.TrimSpace(o.FirstName + " " + o.LastName); name != "" {
		return name
	}
	if o.Email != "" {
		return o.Email
	}
	return o.ID
}
