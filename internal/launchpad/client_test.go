package launchpad_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openstack-charmers/charm-recipe-tool/internal/launchpad"
)

const (
	testTeamNameConstant    = "openstack-charmers"
	testProjectNameConstant = "charm-nova-compute"
)

func newTestClient(testInstance *testing.T, handler http.Handler) (*launchpad.Client, *httptest.Server) {
	testInstance.Helper()
	server := httptest.NewServer(handler)
	testInstance.Cleanup(server.Close)
	client := launchpad.NewClient(
		launchpad.WithServiceRoot(server.URL+"/devel"),
		launchpad.WithWebRoot(server.URL),
		launchpad.WithHTTPClient(server.Client()),
	)
	return client, server
}

func TestPersonLookup(testInstance *testing.T) {
	var requestedPath string
	client, _ := newTestClient(testInstance, http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		requestedPath = request.URL.Path
		require.NotEmpty(testInstance, request.Header.Get("Authorization"))
		json.NewEncoder(responseWriter).Encode(launchpad.Person{
			SelfLink: "https://api.launchpad.net/devel/~" + testTeamNameConstant,
			Name:     testTeamNameConstant,
			IsTeam:   true,
		})
	}))

	person, lookupError := client.Person(context.Background(), testTeamNameConstant)
	require.NoError(testInstance, lookupError)
	require.Equal(testInstance, "/devel/~"+testTeamNameConstant, requestedPath)
	require.Equal(testInstance, testTeamNameConstant, person.Name)
	require.True(testInstance, person.IsTeam)
}

func TestPersonLookupSurfacesAPIError(testInstance *testing.T) {
	client, _ := newTestClient(testInstance, http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		http.Error(responseWriter, "no such person", http.StatusNotFound)
	}))

	_, lookupError := client.Person(context.Background(), "nobody")
	require.Error(testInstance, lookupError)
	require.True(testInstance, launchpad.IsNotFound(lookupError))
}

func TestCharmRecipesWalksPagedCollections(testInstance *testing.T) {
	var server *httptest.Server

	ownerLink := "https://api.launchpad.net/devel/~" + testTeamNameConstant
	projectLink := "https://api.launchpad.net/devel/" + testProjectNameConstant

	handler := http.NewServeMux()
	handler.HandleFunc("/devel/+charm-recipes", func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, "findByOwner", request.URL.Query().Get("ws.op"))

		if request.URL.Query().Get("page") == "2" {
			fmt.Fprintf(responseWriter, `{"entries": [{"name": "second", "project_link": %q}]}`, projectLink)
			return
		}
		fmt.Fprintf(responseWriter,
			`{"entries": [{"name": "first", "project_link": %q}, {"name": "other-project", "project_link": "elsewhere"}], "next_collection_link": %q}`,
			projectLink, server.URL+"/devel/+charm-recipes?ws.op=findByOwner&page=2")
	})

	client, startedServer := newTestClient(testInstance, handler)
	server = startedServer

	recipes, listError := client.CharmRecipes(context.Background(),
		&launchpad.Person{SelfLink: ownerLink, Name: testTeamNameConstant},
		&launchpad.Project{SelfLink: projectLink, Name: testProjectNameConstant})
	require.NoError(testInstance, listError)
	require.Len(testInstance, recipes, 2)
	require.Equal(testInstance, "first", recipes[0].Name)
	require.Equal(testInstance, "second", recipes[1].Name)
}

func TestCreateCharmRecipeEncodesChannels(testInstance *testing.T) {
	var receivedForm url.Values
	handler := http.NewServeMux()
	handler.HandleFunc("/devel/+charm-recipes", func(responseWriter http.ResponseWriter, request *http.Request) {
		require.NoError(testInstance, request.ParseForm())
		receivedForm = request.PostForm
		responseWriter.WriteHeader(http.StatusCreated)
		json.NewEncoder(responseWriter).Encode(launchpad.CharmRecipe{Name: request.PostForm.Get("name")})
	})

	client, _ := newTestClient(testInstance, handler)

	createdRecipe, createError := client.CreateCharmRecipe(context.Background(), launchpad.CharmRecipeCreateArguments{
		Name:              "charm-nova-compute.master.latest",
		Owner:             &launchpad.Person{SelfLink: "owner-link"},
		Project:           &launchpad.Project{SelfLink: "project-link"},
		GitRef:            &launchpad.GitRef{SelfLink: "ref-link"},
		StoreName:         "nova-compute",
		AutoBuild:         true,
		AutoBuildChannels: map[string]string{"charmcraft": "2.x/stable"},
		StoreUpload:       true,
		StoreChannels:     []string{"latest/edge"},
	})
	require.NoError(testInstance, createError)
	require.Equal(testInstance, "charm-nova-compute.master.latest", createdRecipe.Name)

	require.Equal(testInstance, "new", receivedForm.Get("ws.op"))
	require.Equal(testInstance, "true", receivedForm.Get("auto_build"))
	require.Equal(testInstance, "true", receivedForm.Get("store_upload"))
	require.JSONEq(testInstance, `["latest/edge"]`, receivedForm.Get("store_channels"))
	require.JSONEq(testInstance, `{"charmcraft": "2.x/stable"}`, receivedForm.Get("auto_build_channels"))
}

func TestUpdateCharmRecipeSendsPatch(testInstance *testing.T) {
	var receivedMethod string
	var receivedBody map[string]any
	client, server := newTestClient(testInstance, http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		receivedMethod = request.Method
		require.NoError(testInstance, json.NewDecoder(request.Body).Decode(&receivedBody))
		responseWriter.WriteHeader(http.StatusOK)
	}))

	updateError := client.UpdateCharmRecipe(context.Background(), server.URL+"/devel/recipe", map[string]any{"auto_build": false})
	require.NoError(testInstance, updateError)
	require.Equal(testInstance, "PATCH", receivedMethod)
	require.Equal(testInstance, map[string]any{"auto_build": false}, receivedBody)
}

func TestDeleteCharmRecipe(testInstance *testing.T) {
	var receivedMethod string
	client, server := newTestClient(testInstance, http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		receivedMethod = request.Method
		responseWriter.WriteHeader(http.StatusOK)
	}))

	require.NoError(testInstance, client.DeleteCharmRecipe(context.Background(), server.URL+"/devel/recipe"))
	require.Equal(testInstance, "DELETE", receivedMethod)
}

func TestDefaultGitRepositoryFiltersByOwner(testInstance *testing.T) {
	ownerLink := "https://api.launchpad.net/devel/~" + testTeamNameConstant
	projectLink := "https://api.launchpad.net/devel/" + testProjectNameConstant

	handler := http.NewServeMux()
	handler.HandleFunc("/devel/+git", func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, "getRepositories", request.URL.Query().Get("ws.op"))
		fmt.Fprintf(responseWriter,
			`{"entries": [{"name": "someone-elses", "owner_link": "other"}, {"name": "ours", "owner_link": %q}]}`,
			ownerLink)
	})

	client, _ := newTestClient(testInstance, handler)

	repository, lookupError := client.DefaultGitRepository(context.Background(),
		&launchpad.Person{SelfLink: ownerLink, Name: testTeamNameConstant},
		&launchpad.Project{SelfLink: projectLink, Name: testProjectNameConstant})
	require.NoError(testInstance, lookupError)
	require.Equal(testInstance, "ours", repository.Name)
}

func TestDefaultGitRepositoryReportsMissing(testInstance *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/devel/+git", func(responseWriter http.ResponseWriter, request *http.Request) {
		fmt.Fprint(responseWriter, `{"entries": []}`)
	})

	client, _ := newTestClient(testInstance, handler)

	_, lookupError := client.DefaultGitRepository(context.Background(),
		&launchpad.Person{SelfLink: "owner", Name: testTeamNameConstant},
		&launchpad.Project{SelfLink: "project", Name: testProjectNameConstant})
	require.Error(testInstance, lookupError)

	var notFoundError launchpad.RepositoryNotFoundError
	require.ErrorAs(testInstance, lookupError, &notFoundError)
	require.Equal(testInstance, testProjectNameConstant, notFoundError.ProjectName)
}

func TestObtainRequestTokenBuildsAuthorizationURL(testInstance *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/+request-token", func(responseWriter http.ResponseWriter, request *http.Request) {
		require.NoError(testInstance, request.ParseForm())
		require.Equal(testInstance, "PLAINTEXT", request.PostForm.Get("oauth_signature_method"))
		require.Equal(testInstance, "&", request.PostForm.Get("oauth_signature"))
		fmt.Fprint(responseWriter, "oauth_token=reqtoken&oauth_token_secret=reqsecret")
	})

	client, server := newTestClient(testInstance, handler)

	requestToken, tokenError := client.ObtainRequestToken(context.Background())
	require.NoError(testInstance, tokenError)
	require.Equal(testInstance, "reqtoken", requestToken.Token)
	require.Equal(testInstance, "reqsecret", requestToken.TokenSecret)

	authorizationURL, parseError := url.Parse(requestToken.AuthorizationURL)
	require.NoError(testInstance, parseError)
	require.Equal(testInstance, server.URL+"/+authorize-token", authorizationURL.Scheme+"://"+authorizationURL.Host+authorizationURL.Path)
	require.Equal(testInstance, "reqtoken", authorizationURL.Query().Get("oauth_token"))
	require.Equal(testInstance, "DESKTOP_INTEGRATION", authorizationURL.Query().Get("allow_permission"))
}

func TestExchangeAccessToken(testInstance *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/+access-token", func(responseWriter http.ResponseWriter, request *http.Request) {
		require.NoError(testInstance, request.ParseForm())
		require.Equal(testInstance, "reqtoken", request.PostForm.Get("oauth_token"))
		require.Equal(testInstance, "&reqsecret", request.PostForm.Get("oauth_signature"))
		fmt.Fprint(responseWriter, "oauth_token=accesstoken&oauth_token_secret=accesssecret")
	})

	client, _ := newTestClient(testInstance, handler)

	credentials, exchangeError := client.ExchangeAccessToken(context.Background(), &launchpad.RequestToken{
		Token:       "reqtoken",
		TokenSecret: "reqsecret",
	})
	require.NoError(testInstance, exchangeError)
	require.Equal(testInstance, "accesstoken", credentials.Token)
	require.Equal(testInstance, "accesssecret", credentials.TokenSecret)
}

func TestBuildLogDecompressesGzipContent(testInstance *testing.T) {
	var compressedLog bytes.Buffer
	gzipWriter := gzip.NewWriter(&compressedLog)
	_, writeError := gzipWriter.Write([]byte("log line"))
	require.NoError(testInstance, writeError)
	require.NoError(testInstance, gzipWriter.Close())

	client, server := newTestClient(testInstance, http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.Write(compressedLog.Bytes())
	}))

	logContents, logError := client.BuildLog(context.Background(), server.URL+"/log.gz")
	require.NoError(testInstance, logError)
	require.Equal(testInstance, "log line", logContents)
}

func TestBuildLogReturnsPlainContentUnchanged(testInstance *testing.T) {
	client, server := newTestClient(testInstance, http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		fmt.Fprint(responseWriter, "plain log")
	}))

	logContents, logError := client.BuildLog(context.Background(), server.URL+"/log")
	require.NoError(testInstance, logError)
	require.Equal(testInstance, "plain log", logContents)
}
