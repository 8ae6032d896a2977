package console

import (
	"context"
	"slices"
	"time"

	"github.com/aluiziolira/go-admin-console/models"
	"github.com/aluiziolira/go-admin-console/parser"
)

func (c *Console) defaultForm() Form {
	return Form{
		MaxJobs:  c.cfg.DefaultMaxJobs,
		MaxPages: c.cfg.DefaultMaxPages,
	}
}

// Form returns a copy of the pending start request.
func (c *Console) Form() Form {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form.clone()
}

// ToggleSpider adds or removes a spider from the selection and reports
// whether it is now selected. Once targets are known, unknown spiders are
// rejected.
func (c *Console) ToggleSpider(name string) (bool, error) {
	name = parser.NormalizeSpider(name)
	return c.toggle(name, "spiders", models.Targets.HasSpider, func(f *Form) *[]string { return &f.Spiders })
}

// ToggleCountry adds or removes a country from the selection and reports
// whether it is now selected.
func (c *Console) ToggleCountry(code string) (bool, error) {
	code = parser.NormalizeCountry(code)
	return c.toggle(code, "countries", models.Targets.HasCountry, func(f *Form) *[]string { return &f.Countries })
}

func (c *Console) toggle(value, field string, known func(models.Targets, string) bool, list func(*Form) *[]string) (bool, error) {
	if value == "" {
		return false, &parser.ValidationError{Field: field, Reason: "value is empty"}
	}

	var selected bool
	var err error
	c.updateForm(func(f *Form, targets *models.Targets) {
		if targets != nil && !known(*targets, value) {
			err = &parser.ValidationError{Field: field, Reason: value + " is not available"}
			return
		}
		values := list(f)
		if i := slices.Index(*values, value); i >= 0 {
			*values = slices.Delete(*values, i, i+1)
			if len(*values) == 0 {
				*values = nil
			}
			return
		}
		*values = append(*values, value)
		selected = true
	})
	return selected, err
}

// SetMaxJobs sets the form's job bound. Bounds are checked on submit.
func (c *Console) SetMaxJobs(n int) {
	c.updateForm(func(f *Form, _ *models.Targets) { f.MaxJobs = n })
}

// SetMaxPages sets the form's page bound. Bounds are checked on submit.
func (c *Console) SetMaxPages(n int) {
	c.updateForm(func(f *Form, _ *models.Targets) { f.MaxPages = n })
}

// ResetForm clears the selection and restores the default bounds.
func (c *Console) ResetForm() {
	c.updateForm(func(f *Form, _ *models.Targets) { *f = c.defaultForm() })
}

// SubmitForm starts a task from the current form.
func (c *Console) SubmitForm(ctx context.Context) (*models.StartResponse, error) {
	f := c.Form()
	return c.StartTask(ctx, f.Spiders, f.Countries, f.MaxJobs, f.MaxPages)
}

func (c *Console) updateForm(mutate func(*Form, *models.Targets)) {
	c.mu.Lock()
	mutate(&c.form, c.state.Targets)
	c.state.UpdatedAt = time.Now()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
}
