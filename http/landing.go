package http

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"penguinlab/ml"
)

type levelCard struct {
	Level       ml.Level
	Title       string
	Description string
}

var levelCards = []levelCard{
	{ml.Easy, "Easy", "Enter measurements and get the predicted species."},
	{ml.Intermediate, "Intermediate", "Adds the probability of each species and a CSV download of the result."},
	{ml.Advanced, "Advanced", "Tune the number of trees and features per split, then inspect feature importances and the training confusion matrix."},
}

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Palmer Penguins Species Prediction</title>
</head>
<body>
	<h1>Palmer Penguins Species Prediction</h1>
	<p>A random forest trained on {{.Rows}} reference penguins predicts the species of the penguin you describe.</p>
	<ul>
	{{range .Levels}}
		<li>
			<h2>{{.Title}}</h2>
			<p>{{.Description}}</p>
			<code>POST /api/predict/{{.Level}}</code>
		</li>
	{{end}}
	</ul>
	<p>Input bounds: <a href="/api/dataset/ranges">/api/dataset/ranges</a>. Live predictions: <code>/api/ws/predictions</code>.</p>
</body>
</html>
`))

func (a *API) handleLanding(w http.ResponseWriter, r *http.Request) {
	rows := 0
	if reference, err := a.settings.Load().Source.Load(r.Context()); err == nil {
		rows = reference.Len()
	} else {
		a.logger.Warn("landing page without dataset", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := landingTemplate.Execute(w, map[string]interface{}{
		"Rows":   rows,
		"Levels": levelCards,
	})
	if err != nil {
		a.logger.Error("render landing page", zap.Error(err))
	}
}
