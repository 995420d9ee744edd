package httpapi

import (
	"archive/zip"
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/filedrop/filedrop/internal/logging"
	"github.com/filedrop/filedrop/internal/server/accounts"
	"github.com/filedrop/filedrop/internal/server/archive"
	"github.com/filedrop/filedrop/internal/server/auth"
	"github.com/filedrop/filedrop/internal/server/blob"
	"github.com/filedrop/filedrop/internal/server/files"
	"github.com/filedrop/filedrop/internal/server/policy"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE accounts (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			salt BLOB NOT NULL,
			verifier BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE TABLE files (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			stored_name TEXT UNIQUE NOT NULL,
			original_name TEXT NOT NULL,
			size INTEGER NOT NULL,
			uploaded_at TIMESTAMP NOT NULL,
			download_count INTEGER NOT NULL DEFAULT 0
		);
	`)
	require.NoError(t, err)

	store, err := blob.NewDiskStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	logger := testLogger()
	pol := &policy.Policy{MinUsernameLen: 3, MinPasswordLen: 4, MaxBatchFiles: 10, MaxFileSize: 1 << 20}

	accSvc := accounts.NewService(accounts.NewPostgresRepository(db), logger)
	fileSvc := files.NewService(files.NewPostgresRepository(db), store, pol, logger)
	assembler := archive.NewAssembler(fileSvc, logger)

	handler := NewHandler(accSvc, fileSvc, assembler, pol, []byte("test-secret"), time.Hour, logger)

	router := chi.NewRouter()
	handler.Register(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func multipartUpload(t *testing.T, username, password string, replace bool, members map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("username", username))
	require.NoError(t, mw.WriteField("password", password))
	if replace {
		require.NoError(t, mw.WriteField("replace_existing", "true"))
	}
	for name, content := range members {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, srv *httptest.Server, username, password string, replace bool, members map[string]string) (int, uploadResponse) {
	t.Helper()

	body, contentType := multipartUpload(t, username, password, replace, members)
	resp, err := http.Post(srv.URL+"/api/v1/upload", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out uploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func doLogin(t *testing.T, srv *httptest.Server, username, password string) (int, loginResponse) {
	t.Helper()

	body, err := json.Marshal(credentialsRequest{Username: username, Password: password})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/api/v1/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out loginResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func doGet(t *testing.T, srv *httptest.Server, path, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestUploadListDownloadArchive(t *testing.T) {
	srv := newTestServer(t)

	status, up := doUpload(t, srv, "alice", "hunter2", false, map[string]string{
		"notes.txt": "some notes",
		"photo.jpg": "jpeg bytes",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, 2, up.UploadedCount)
	assert.Equal(t, "alice", up.Username)
	assert.Equal(t, "hunter2", up.Password, "credentials are echoed once in the upload response")
	require.NotEmpty(t, up.Token)

	// List
	resp := doGet(t, srv, "/api/v1/files", up.Token)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list listResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Files, 2)
	assert.Equal(t, int64(2), list.Stats.TotalFiles)

	// Download one file
	var notesID string
	for _, f := range list.Files {
		if f.Name == "notes.txt" {
			notesID = f.ID
		}
	}
	require.NotEmpty(t, notesID)

	dl := doGet(t, srv, "/api/v1/files/"+notesID, up.Token)
	defer dl.Body.Close()
	require.Equal(t, http.StatusOK, dl.StatusCode)
	assert.Contains(t, dl.Header.Get("Content-Disposition"), "notes.txt")

	content, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "some notes", string(content))

	// Archive
	ar := doGet(t, srv, "/api/v1/archive", up.Token)
	defer ar.Body.Close()
	require.Equal(t, http.StatusOK, ar.StatusCode)
	assert.Equal(t, "application/zip", ar.Header.Get("Content-Type"))
	assert.Contains(t, ar.Header.Get("Content-Disposition"), "alice_files.zip")

	zipData, err := io.ReadAll(ar.Body)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	require.NoError(t, err)
	assert.Len(t, zr.File, 2)
}

func TestUpload_SameCredentialsAppend(t *testing.T) {
	srv := newTestServer(t)

	status, _ := doUpload(t, srv, "alice", "hunter2", false, map[string]string{"a.txt": "a"})
	require.Equal(t, http.StatusCreated, status)

	status, up := doUpload(t, srv, "alice", "hunter2", false, map[string]string{"b.txt": "b"})
	require.Equal(t, http.StatusCreated, status)

	resp := doGet(t, srv, "/api/v1/files", up.Token)
	defer resp.Body.Close()

	var list listResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Files, 2)
}

func TestUpload_ReplaceExisting(t *testing.T) {
	srv := newTestServer(t)

	status, _ := doUpload(t, srv, "alice", "hunter2", false, map[string]string{"old.txt": "old"})
	require.Equal(t, http.StatusCreated, status)

	status, up := doUpload(t, srv, "alice", "hunter2", true, map[string]string{"new.txt": "new"})
	require.Equal(t, http.StatusCreated, status)

	resp := doGet(t, srv, "/api/v1/files", up.Token)
	defer resp.Body.Close()

	var list listResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Files, 1)
	assert.Equal(t, "new.txt", list.Files[0].Name)
}

func TestUpload_WrongPasswordOnTakenUsername(t *testing.T) {
	srv := newTestServer(t)

	status, _ := doUpload(t, srv, "alice", "hunter2", false, map[string]string{"a.txt": "a"})
	require.Equal(t, http.StatusCreated, status)

	status, _ = doUpload(t, srv, "alice", "wrong-pass", false, map[string]string{"b.txt": "b"})
	assert.Equal(t, http.StatusUnauthorized, status,
		"a taken username with the wrong password is indistinguishable from bad credentials")
}

func TestUpload_RejectsShortCredentials(t *testing.T) {
	srv := newTestServer(t)

	status, _ := doUpload(t, srv, "al", "hunter2", false, map[string]string{"a.txt": "a"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doUpload(t, srv, "alice", "x", false, map[string]string{"a.txt": "a"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUpload_NoFiles(t *testing.T) {
	srv := newTestServer(t)

	status, _ := doUpload(t, srv, "alice", "hunter2", false, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t)

	_, up := doUpload(t, srv, "alice", "hunter2", false, map[string]string{"a.txt": "a"})
	require.NotEmpty(t, up.Token)

	status, login := doLogin(t, srv, "alice", "hunter2")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", login.Username)
	assert.NotEmpty(t, login.Token)

	status, _ = doLogin(t, srv, "alice", "wrong")
	assert.Equal(t, http.StatusUnauthorized, status)

	// Login never claims a username.
	status, _ = doLogin(t, srv, "nobody", "whatever")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAuthenticatedEndpoints_RejectBadTokens(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/api/v1/files", "/api/v1/archive"} {
		resp := doGet(t, srv, path, "")
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)

		resp = doGet(t, srv, path, "not.a.token")
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestDownload_OtherAccountsFileIsNotFound(t *testing.T) {
	srv := newTestServer(t)

	_, aliceUp := doUpload(t, srv, "alice", "hunter2", false, map[string]string{"secret.txt": "alice data"})
	_, bobUp := doUpload(t, srv, "bobby", "pass123", false, map[string]string{"b.txt": "bob data"})

	resp := doGet(t, srv, "/api/v1/files", aliceUp.Token)
	var list listResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list.Files, 1)

	dl := doGet(t, srv, "/api/v1/files/"+list.Files[0].ID, bobUp.Token)
	dl.Body.Close()
	assert.Equal(t, http.StatusNotFound, dl.StatusCode)
}

func TestArchive_EmptyAccount(t *testing.T) {
	srv := newTestServer(t)

	// A valid token for an account that owns nothing.
	token, err := auth.GenerateToken("acc-empty", "ghost", []byte("test-secret"), time.Hour)
	require.NoError(t, err)

	ar := doGet(t, srv, "/api/v1/archive", token)
	defer ar.Body.Close()
	assert.Equal(t, http.StatusNotFound, ar.StatusCode)
}

func TestHealthLive(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
