package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	echoapi "github.com/trezcool/ripoti/apps/api/echo"
	"github.com/trezcool/ripoti/assets"
	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/editor"
	"github.com/trezcool/ripoti/core/report"
	"github.com/trezcool/ripoti/core/user"
	aisvc "github.com/trezcool/ripoti/services/ai"
	datasetsvc "github.com/trezcool/ripoti/services/dataset"
	emailsvc "github.com/trezcool/ripoti/services/email"
	logsvc "github.com/trezcool/ripoti/services/logger"
	telemetrysvc "github.com/trezcool/ripoti/services/telemetry"
	inmemdb "github.com/trezcool/ripoti/storage/database/inmem"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	app     echoapi.Server
	conf    *core.Config
	usrRepo user.Repository
	reports report.Service
	editor  *editor.Manager
	metrics *telemetrysvc.Metrics
	mail    *emailsvc.ServiceMock
	logger  *logsvc.RecorderLogger
}

func setup(t *testing.T) fixture {
	t.Helper()
	conf := core.NewTestConfig()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)

	validate, translator := user.NewValidator()
	report.InitValidators(validate, translator)

	logger := logsvc.NewRecorderLogger()
	core.ParseEmailTemplates(conf, assets.FS, logger)
	mailSvc := emailsvc.NewServiceMock()
	usrSvc := user.NewServiceMock(usrRepo, mailSvc, conf)
	rptSvc := report.NewService(inmemdb.NewReportRepository(db), validate, conf)
	source := datasetsvc.NewSource()
	metrics := telemetrysvc.New()
	manager := editor.NewManager(editor.ManagerDeps{
		Conf:      conf,
		Logger:    logger,
		Validate:  validate,
		Reports:   rptSvc,
		Users:     usrSvc,
		Mailer:    mailSvc,
		Generator: aisvc.StaticGenerator{},
		Data:      source,
		Recorder:  metrics,
	})

	app := echoapi.NewServer(
		"",  /* addr */
		nil, /* shutdown */
		&echoapi.Deps{
			Conf:       conf,
			Logger:     logger,
			Validate:   validate,
			Translator: translator,
			UserSvc:    usrSvc,
			ReportSvc:  rptSvc,
			Editor:     manager,
			Data:       source,
			Mailer:     mailSvc,
			Metrics:    metrics,
		},
	)
	return fixture{
		app:     app,
		conf:    conf,
		usrRepo: usrRepo,
		reports: rptSvc,
		editor:  manager,
		metrics: metrics,
		mail:    mailSvc,
		logger:  logger,
	}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
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

// do serves one request & returns the recorded response.
func (f fixture) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	f.app.ServeHTTP(rec, req)
	return rec
}

func (f fixture) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			checkCodeAndData(t, tt, f.do(method, tt.path, tt.token, tt.body))
		})
	}
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	claims := echoapi.GetUserClaims(conf, usr)
	token, err := echoapi.GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj(): %v", err)
	}
	return data
}

func unmarshalBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshalBody(): %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
