package recipes

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/openstack-charmers/charm-recipe-tool/internal/groupconfig"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

// Supported output formats.
const (
	OutputFormatPlain OutputFormat = "plain"
	OutputFormatJSON  OutputFormat = "json"
)

const (
	unsupportedFormatTemplateConstant = "unsupported output format: %s"
	recipeExistsMarkerConstant        = "yes"
	recipeMissingMarkerConstant       = "no"
	recipeChangedMarkerConstant       = "changed"
	jsonIndentConstant                = "  "
)

var listTableHeader = []string{"Project", "Branch", "Recipe", "Track", "Channels", "Exists", "State"}

// ParseOutputFormat validates a format flag value.
func ParseOutputFormat(value string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(value))) {
	case OutputFormatPlain:
		return OutputFormatPlain, nil
	case OutputFormatJSON:
		return OutputFormatJSON, nil
	default:
		return "", fmt.Errorf(unsupportedFormatTemplateConstant, value)
	}
}

// recipeReport is the JSON shape of one planned recipe.
type recipeReport struct {
	Recipe        string         `json:"recipe"`
	Branch        string         `json:"branch"`
	Exists        bool           `json:"exists"`
	Changed       bool           `json:"changed"`
	Changes       []string       `json:"changes,omitempty"`
	UpdatedFields map[string]any `json:"updated_fields,omitempty"`
	StoreChannels []string       `json:"store_channels,omitempty"`
	AutoBuild     bool           `json:"auto_build"`
	StoreUpload   bool           `json:"store_upload"`
}

// planReport is the JSON shape of one project plan.
type planReport struct {
	Project         string         `json:"project"`
	CharmhubName    string         `json:"charmhub_name"`
	Team            string         `json:"team"`
	Repository      string         `json:"repository,omitempty"`
	Recipes         []recipeReport `json:"recipes"`
	UnknownRecipes  []string       `json:"unknown_recipes,omitempty"`
	MissingBranches []string       `json:"missing_branches,omitempty"`
}

func buildPlanReport(plan *Plan) planReport {
	report := planReport{
		Project:         plan.Project.LaunchpadProject,
		CharmhubName:    plan.Project.CharmhubName,
		Team:            plan.Project.Team,
		Recipes:         make([]recipeReport, 0, len(plan.Actions)),
		MissingBranches: plan.MissingBranches,
	}
	if plan.Repository != nil {
		report.Repository = plan.Repository.GitHTTPSURL
	}
	for _, action := range plan.Actions {
		report.Recipes = append(report.Recipes, recipeReport{
			Recipe:        action.RecipeName,
			Branch:        groupconfig.BranchName(action.BranchReference.Path),
			Exists:        action.Exists,
			Changed:       action.Changed,
			Changes:       action.Changes,
			UpdatedFields: action.UpdatedFields,
			StoreChannels: action.StoreChannels,
			AutoBuild:     action.Specification.AutoBuild,
			StoreUpload:   action.Specification.Upload,
		})
	}
	for _, unknownRecipe := range plan.UnknownRecipes {
		report.UnknownRecipes = append(report.UnknownRecipes, unknownRecipe.Name)
	}
	return report
}

// RenderShow prints the resolved configuration of each project together with
// its planned recipes.
func RenderShow(outputWriter io.Writer, plans []*Plan, format OutputFormat) error {
	if format == OutputFormatJSON {
		return renderJSON(outputWriter, plans)
	}
	for planIndex, plan := range plans {
		if planIndex > 0 {
			fmt.Fprintln(outputWriter)
		}
		fmt.Fprintf(outputWriter, "%s (charmhub: %s, team: %s)\n", plan.Project.LaunchpadProject, plan.Project.CharmhubName, plan.Project.Team)
		if plan.Repository != nil {
			fmt.Fprintf(outputWriter, "  repository: %s\n", plan.Repository.GitHTTPSURL)
		} else {
			fmt.Fprintf(outputWriter, "  repository: %s (not yet in launchpad)\n", plan.Project.Repository)
		}
		for _, action := range plan.Actions {
			fmt.Fprintf(outputWriter, "  %s <- %s [%s]\n", action.RecipeName, groupconfig.BranchName(action.BranchReference.Path), strings.Join(action.StoreChannels, ", "))
		}
		for _, missingBranch := range plan.MissingBranches {
			fmt.Fprintf(outputWriter, "  missing branch: %s\n", groupconfig.BranchName(missingBranch))
		}
	}
	return nil
}

// RenderList prints a table of every planned recipe across the projects.
func RenderList(outputWriter io.Writer, plans []*Plan, format OutputFormat) error {
	if format == OutputFormatJSON {
		return renderJSON(outputWriter, plans)
	}
	table := tablewriter.NewWriter(outputWriter)
	table.SetHeader(listTableHeader)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, plan := range plans {
		for _, action := range plan.Actions {
			trackGroupName := "latest"
			if len(action.StoreChannels) > 0 {
				if parsedChannel, parseError := groupconfig.ParseChannel(action.StoreChannels[0]); parseError == nil {
					trackGroupName = parsedChannel.Track
				}
			}
			existsMarker := recipeMissingMarkerConstant
			if action.Exists {
				existsMarker = recipeExistsMarkerConstant
			}
			stateMarker := ""
			if action.Changed {
				stateMarker = recipeChangedMarkerConstant
			}
			table.Append([]string{
				plan.Project.LaunchpadProject,
				groupconfig.BranchName(action.BranchReference.Path),
				action.RecipeName,
				trackGroupName,
				strings.Join(action.StoreChannels, ","),
				existsMarker,
				stateMarker,
			})
		}
	}
	table.Render()
	return nil
}

// RenderDiff prints the changes that applying each plan would make. With
// detail set the individual field changes of each drifted recipe are listed,
// otherwise only the change count is shown.
func RenderDiff(outputWriter io.Writer, plans []*Plan, format OutputFormat, detail bool) error {
	if format == OutputFormatJSON {
		return renderJSON(outputWriter, plans)
	}
	for _, plan := range plans {
		planHasOutput := false
		printHeader := func() {
			if !planHasOutput {
				fmt.Fprintf(outputWriter, "%s:\n", plan.Project.LaunchpadProject)
				planHasOutput = true
			}
		}
		for _, action := range plan.Actions {
			switch {
			case !action.Exists:
				printHeader()
				fmt.Fprintf(outputWriter, "  + create %s (branch %s, channels %s)\n", action.RecipeName, groupconfig.BranchName(action.BranchReference.Path), strings.Join(action.StoreChannels, ","))
			case action.Changed:
				printHeader()
				if !detail {
					fmt.Fprintf(outputWriter, "  ~ update %s (%d changes)\n", action.RecipeName, len(action.Changes))
					continue
				}
				fmt.Fprintf(outputWriter, "  ~ update %s\n", action.RecipeName)
				for _, changeDescription := range action.Changes {
					fmt.Fprintf(outputWriter, "      %s\n", changeDescription)
				}
			}
		}
		for _, unknownRecipe := range plan.UnknownRecipes {
			printHeader()
			fmt.Fprintf(outputWriter, "  - unknown %s\n", unknownRecipe.Name)
		}
		for _, missingBranch := range plan.MissingBranches {
			printHeader()
			fmt.Fprintf(outputWriter, "  ! missing branch %s\n", groupconfig.BranchName(missingBranch))
		}
		if !planHasOutput {
			fmt.Fprintf(outputWriter, "%s: in sync\n", plan.Project.LaunchpadProject)
		}
	}
	return nil
}

func renderJSON(outputWriter io.Writer, plans []*Plan) error {
	reports := make([]planReport, 0, len(plans))
	for _, plan := range plans {
		reports = append(reports, buildPlanReport(plan))
	}
	encoder := json.NewEncoder(outputWriter)
	encoder.SetIndent("", jsonIndentConstant)
	return encoder.Encode(reports)
}
