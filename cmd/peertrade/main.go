package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"

	"github.com/btcsuite/btcutil"
	"github.com/urfave/cli/v2"
)

var (
	peertradeDataDir = btcutil.AppDataDir("peertrade-operator", false)
	statePath        = path.Join(peertradeDataDir, "state.json")
)

func main() {
	app := cli.NewApp()

	app.Version = "0.0.1"
	app.Name = "peertrade operator CLI"
	app.Usage = "Command line interface for peertraded daemon operators"
	app.Commands = append(
		app.Commands,
		&configCmd,
		&inittrade,
		&listtrades,
		&trade,
		&paymentsent,
		&paymentreceived,
		&opendispute,
		&reopendispute,
		&listdisputes,
		&disputechat,
		&closedispute,
	)

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

func getState() (map[string]string, error) {
	data := map[string]string{}

	file, err := os.ReadFile(statePath)
	if err != nil {
		return nil, errors.New("get config state error: try 'config init'")
	}
	json.Unmarshal(file, &data)

	return data, nil
}

func setState(data map[string]string) error {
	if _, err := os.Stat(peertradeDataDir); os.IsNotExist(err) {
		os.Mkdir(peertradeDataDir, os.ModeDir|0755)
	}

	currentData, _ := getState()
	if currentData == nil {
		currentData = map[string]string{}
	}
	for key, value := range data {
		currentData[key] = value
	}

	content, err := json.Marshal(currentData)
	if err != nil {
		return err
	}
	return os.WriteFile(statePath, content, 0644)
}

func getBaseUrl() (string, error) {
	state, err := getState()
	if err != nil {
		return "", err
	}
	baseUrl, ok := state["daemon_url"]
	if !ok {
		return "", errors.New("daemon url is not set: try 'config init'")
	}
	return baseUrl, nil
}

func httpGet(urlPath string) (json.RawMessage, error) {
	baseUrl, err := getBaseUrl()
	if err != nil {
		return nil, err
	}
	res, err := http.Get(baseUrl + urlPath)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	return readResponse(res)
}

func httpPost(urlPath string, body interface{}) (json.RawMessage, error) {
	baseUrl, err := getBaseUrl()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	res, err := http.Post(baseUrl+urlPath, "application/json", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	return readResponse(res)
}

func readResponse(res *http.Response) (json.RawMessage, error) {
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &errBody) == nil && errBody.Error != "" {
			return nil, errors.New(errBody.Error)
		}
		return nil, fmt.Errorf("daemon returned status %d", res.StatusCode)
	}
	return raw, nil
}

func printRespJSON(raw json.RawMessage) {
	if len(raw) == 0 {
		fmt.Println("ok")
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(buf.String())
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[peertrade] %v\n", err)
	os.Exit(1)
}
