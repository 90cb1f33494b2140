package groupconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	groupFileExtensionConstant          = ".yaml"
	configDirMissingTemplateConstant    = "configuration directory %q does not exist"
	groupFileMissingTemplateConstant    = "group configuration file %q was not found"
	groupFileReadTemplateConstant       = "unable to read group configuration %q: %w"
	groupFileParseTemplateConstant      = "unable to parse group configuration %q: %w"
	duplicateProjectTemplateConstant    = "project configuration for %q already exists"
	missingFieldTemplateConstant        = "project %q: missing required field %q"
	invalidNameTemplateConstant         = "project %q: field %q value %q must match %s"
	invalidChannelTemplateConstant      = "project %q branch %q: %v"
	nameFieldConstant                   = "name"
	charmhubFieldConstant               = "charmhub"
	launchpadFieldConstant              = "launchpad"
	teamFieldConstant                   = "team"
	repositoryFieldConstant             = "repository"
	storeNamePatternDescriptionConstant = "^[a-z][a-z0-9_-]+$"
)

var storeNamePattern = regexp.MustCompile(storeNamePatternDescriptionConstant)

// GroupConfig accumulates projects from one or more group configuration
// files, preserving the order in which projects were declared.
type GroupConfig struct {
	orderedProjects []*Project
	projectsByName  map[string]*Project
}

// NewGroupConfig creates an empty group configuration.
func NewGroupConfig() *GroupConfig {
	return &GroupConfig{projectsByName: make(map[string]*Project)}
}

// DiscoverGroupFiles returns the group configuration files to load. When no
// group names are supplied every *.yaml file in the directory is used;
// otherwise each name must resolve to an existing <name>.yaml file.
func DiscoverGroupFiles(configurationDirectory string, groupNames []string) ([]string, error) {
	directoryInfo, statError := os.Stat(configurationDirectory)
	if statError != nil || !directoryInfo.IsDir() {
		return nil, fmt.Errorf(configDirMissingTemplateConstant, configurationDirectory)
	}

	if len(groupNames) == 0 {
		matchedFiles, globError := filepath.Glob(filepath.Join(configurationDirectory, "*"+groupFileExtensionConstant))
		if globError != nil {
			return nil, globError
		}
		sort.Strings(matchedFiles)
		return matchedFiles, nil
	}

	groupFiles := make([]string, 0, len(groupNames))
	for _, groupName := range groupNames {
		groupFile := filepath.Join(configurationDirectory, groupName+groupFileExtensionConstant)
		if _, fileStatError := os.Stat(groupFile); fileStatError != nil {
			return nil, fmt.Errorf(groupFileMissingTemplateConstant, groupFile)
		}
		groupFiles = append(groupFiles, groupFile)
	}
	return groupFiles, nil
}

// LoadFiles reads each group file, applies group defaults to its projects,
// validates them, and adds them to the configuration.
func (groupConfig *GroupConfig) LoadFiles(groupFiles []string) error {
	for _, groupFile := range groupFiles {
		fileContents, readError := os.ReadFile(groupFile)
		if readError != nil {
			return fmt.Errorf(groupFileReadTemplateConstant, groupFile, readError)
		}

		var document GroupDocument
		if parseError := yaml.Unmarshal(fileContents, &document); parseError != nil {
			return fmt.Errorf(groupFileParseTemplateConstant, groupFile, parseError)
		}

		groupName := strings.TrimSuffix(filepath.Base(groupFile), groupFileExtensionConstant)
		for _, projectDocument := range document.Projects {
			resolvedProject, resolveError := resolveProject(projectDocument, document, groupName)
			if resolveError != nil {
				return resolveError
			}
			if addError := groupConfig.AddProject(resolvedProject); addError != nil {
				return addError
			}
		}
	}
	return nil
}

// AddProject registers a resolved project, rejecting duplicate names.
func (groupConfig *GroupConfig) AddProject(project *Project) error {
	if _, alreadyPresent := groupConfig.projectsByName[project.Name]; alreadyPresent {
		return fmt.Errorf(duplicateProjectTemplateConstant, project.Name)
	}
	groupConfig.projectsByName[project.Name] = project
	groupConfig.orderedProjects = append(groupConfig.orderedProjects, project)
	return nil
}

// Projects returns the configured projects matching the selectors in
// declaration order. An empty selector list returns every project.
func (groupConfig *GroupConfig) Projects(selectors []string) []*Project {
	selectedProjects := make([]*Project, 0, len(groupConfig.orderedProjects))
	for _, project := range groupConfig.orderedProjects {
		if project.Matches(selectors) {
			selectedProjects = append(selectedProjects, project)
		}
	}
	return selectedProjects
}

func resolveProject(projectDocument ProjectDocument, groupDocument GroupDocument, groupName string) (*Project, error) {
	teamName := projectDocument.Team
	if len(teamName) == 0 {
		teamName = groupDocument.Defaults.Team
	}

	project := &Project{
		Name:             projectDocument.Name,
		Team:             teamName,
		CharmhubName:     projectDocument.CharmhubName,
		LaunchpadProject: projectDocument.LaunchpadProject,
		Repository:       projectDocument.Repository,
		ProjectGroup:     groupName,
		Branches:         make(map[string]BranchSpecification),
	}

	for branchName, defaultBranchDocument := range groupDocument.Defaults.Branches {
		specification := defaultBranchSpecification()
		specification.MergeBranchDocument(defaultBranchDocument)
		project.Branches[BranchReference(branchName)] = specification
	}

	for branchName, branchDocument := range projectDocument.Branches {
		referencePath := BranchReference(branchName)
		specification, branchSeen := project.Branches[referencePath]
		if !branchSeen {
			specification = defaultBranchSpecification()
		}
		specification.MergeBranchDocument(branchDocument)
		project.Branches[referencePath] = specification
	}

	if validationError := validateProject(project); validationError != nil {
		return nil, validationError
	}
	return project, nil
}

func validateProject(project *Project) error {
	requiredFields := []struct {
		fieldName  string
		fieldValue string
	}{
		{nameFieldConstant, project.Name},
		{charmhubFieldConstant, project.CharmhubName},
		{launchpadFieldConstant, project.LaunchpadProject},
		{teamFieldConstant, project.Team},
		{repositoryFieldConstant, project.Repository},
	}
	for _, requiredField := range requiredFields {
		if len(strings.TrimSpace(requiredField.fieldValue)) == 0 {
			return fmt.Errorf(missingFieldTemplateConstant, project.Name, requiredField.fieldName)
		}
	}

	namedFields := []struct {
		fieldName  string
		fieldValue string
	}{
		{charmhubFieldConstant, project.CharmhubName},
		{launchpadFieldConstant, project.LaunchpadProject},
	}
	for _, namedField := range namedFields {
		if !storeNamePattern.MatchString(namedField.fieldValue) {
			return fmt.Errorf(invalidNameTemplateConstant, project.Name, namedField.fieldName, namedField.fieldValue, storeNamePatternDescriptionConstant)
		}
	}

	for referencePath, specification := range project.Branches {
		for _, channelValue := range specification.Channels {
			if _, channelError := ParseChannel(channelValue); channelError != nil {
				return fmt.Errorf(invalidChannelTemplateConstant, project.Name, BranchName(referencePath), channelError)
			}
		}
	}
	return nil
}
