package sina

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"golddesk/internal/httpx"
)

const sampleLine = `var hq_str_hf_XAU="4120.50,4103.20,4121.0,4119.8,4135.6,4098.1,22:59:31,4103.20,4102.0,0,0,0,2025-06-01";
var hq_str_fx_susdcny="23:30:02,7.1342,7.1340,7.1344,465.21,7.1400,7.1300,美元人民币,7.1350,2025-06-01";
var hq_str_SGE_AUTD="AUTD,黄金延期,hjyq,954.12,952.80,953.00,956.40,951.20,954.00,954.20,952.50";`

func TestExtractField(t *testing.T) {
	fields := ExtractField(sampleLine, "hf_XAU")
	require.Len(t, fields, 13)
	require.Equal(t, "4120.50", fields[0])
	require.Equal(t, "4103.20", fields[1])

	fx := ExtractField(sampleLine, "fx_susdcny")
	require.Equal(t, "7.1342", fx[1])

	au := ExtractField(sampleLine, "SGE_AUTD")
	require.Equal(t, "954.12", au[3])
	require.Equal(t, "952.80", au[4])
}

func TestExtractField_AbsentKey(t *testing.T) {
	require.Nil(t, ExtractField(sampleLine, "SGE_AGTD"))
	require.Nil(t, ExtractField("", "hf_XAU"))
}

func TestFetchQuoteLine_DecodesGB18030(t *testing.T) {
	encoded, err := simplifiedchinese.GB18030.NewEncoder().Bytes([]byte(sampleLine))
	require.NoError(t, err)

	var gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "application/javascript; charset=GB18030")
		_, _ = w.Write(encoded)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/list="}, httpx.New(2*time.Second), nil)
	raw := c.FetchQuoteLine(context.Background(), []string{"hf_XAU", "fx_susdcny", "SGE_AUTD"})
	require.Equal(t, sampleLine, raw)
	require.Equal(t, "https://finance.sina.com.cn/", gotReferer)

	// Chinese instrument names survive the transcode
	require.Contains(t, raw, "黄金延期")
}

func TestFetchQuoteLine_TransportFailureYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/list="}, httpx.New(50*time.Millisecond), nil)
	require.Equal(t, "", c.FetchQuoteLine(context.Background(), []string{"hf_XAU"}))
}

func TestFetchQuoteLine_UpstreamErrorStatusYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/list="}, httpx.New(time.Second), nil)
	require.Equal(t, "", c.FetchQuoteLine(context.Background(), []string{"hf_XAU"}))
}

func TestFetchQuoteLine_NoKeys(t *testing.T) {
	c := New(Config{}, httpx.New(time.Second), nil)
	require.Equal(t, "", c.FetchQuoteLine(context.Background(), nil))
}
