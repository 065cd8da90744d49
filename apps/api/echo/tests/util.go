package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/somalabs/darasa/apps/api/echo"
	"github.com/somalabs/darasa/core"
	"github.com/somalabs/darasa/core/account"
	"github.com/somalabs/darasa/core/catalog"
	"github.com/somalabs/darasa/core/device"
	"github.com/somalabs/darasa/core/meeting"
	inmemdb "github.com/somalabs/darasa/storage/database/inmem"
	testutil "github.com/somalabs/darasa/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// testApp bundles a Server wired on in-memory repositories, plus direct
// handles on the underlying services for seeding.
type testApp struct {
	server *Server
	conf   *core.Config
	clock  *testutil.Clock

	acctRepo   account.Repository
	stage      catalog.Stage
	subject    catalog.Subject
	meetingSvc meeting.ServiceInterface
	deviceSvc  device.ServiceInterface
	limit      *device.LimitConfig
}

func setup(t *testing.T) *testApp {
	t.Helper()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("opening inmem db: %v", err)
	}

	conf := &core.Config{
		TestMode:  true,
		Env:       "TEST",
		AppName:   "Darasa",
		SecretKey: "n0t-s0-s3cret-t3st-k3y",
		Server: core.ServerConfig{
			JWTExpirationDelta:        30 * time.Minute,
			JWTRefreshExpirationDelta: 8 * time.Hour,
		},
		Admission: core.AdmissionConfig{DeviceLimit: device.DefaultLimit},
	}

	app := &testApp{
		conf:     conf,
		clock:    testutil.NewClock(time.Time{}),
		acctRepo: inmemdb.NewAccountRepository(db),
	}

	catRepo := inmemdb.NewCatalogRepository(db)
	app.stage = catRepo.AddStage("Stage 6")
	app.subject = catRepo.AddSubject("Mathematics")

	acctSvc := account.NewService(app.acctRepo)
	app.meetingSvc = meeting.NewService(inmemdb.NewMeetingRepository(db), acctSvc, catRepo, app.clock.Now)

	app.limit, err = device.NewLimitConfig(context.Background(), inmemdb.NewSettingsRepository(db), conf.Admission.DeviceLimit)
	if err != nil {
		t.Fatalf("loading device limit: %v", err)
	}
	app.deviceSvc = device.NewService(
		inmemdb.NewDeviceRepository(db), app.limit, acctSvc,
		nil /* mail */, testutil.NopLogger{}, conf, app.clock.Now,
	)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	account.InitValidators(validate, translator)
	meeting.InitValidators(validate, translator)

	app.server = NewServer(ServerDeps{
		Conf:       conf,
		Logger:     testutil.NopLogger{},
		AccountSvc: acctSvc,
		MeetingSvc: app.meetingSvc,
		DeviceSvc:  app.deviceSvc,
		Validate:   validate,
		Translator: translator,
	})
	return app
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// httpErr mirrors the error envelope. Success is always false on errors,
// which the zero value already encodes.
type httpErr struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// httpFieldErrs mirrors the envelope of a failed validation, where the
// error key carries the per-field breakdown instead of a message.
type httpFieldErrs struct {
	Success bool              `json:"success"`
	Errors  map[string]string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (app *testApp) getToken(t *testing.T, acct account.Account) string {
	t.Helper()
	token, err := GenerateToken(app.conf, GetAccountClaims(app.conf, acct))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decoding response body %q: %v", rec.Body.String(), err)
	}
}
