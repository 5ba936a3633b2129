package model

type JobType string

const (
	JobTechnology JobType = "technology"
	JobBuilding   JobType = "building"
	JobDistrict   JobType = "district"
	JobUpgrade    JobType = "upgrade"
	JobShip       JobType = "ship"
	JobTravel     JobType = "travel"
)

func (t JobType) Valid() bool {
	switch t {
	case JobTechnology, JobBuilding, JobDistrict, JobUpgrade, JobShip, JobTravel:
		return true
	}
	return false
}

// Result is stamped on a job once its terminal step ran.
type Result struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Job struct {
	ID       string  `json:"id"`
	Game     string  `json:"game"`
	Empire   string  `json:"empire"`
	Seq      uint64  `json:"seq"`
	Type     JobType `json:"type"`
	Progress int     `json:"progress"`
	Total    int     `json:"total"`
	Priority float64 `json:"priority"`

	// Cost is the snapshot debited at creation and refunded on cancel.
	Cost map[string]float64 `json:"cost"`

	System     string `json:"system,omitempty"`
	Fleet      string `json:"fleet,omitempty"`
	Technology string `json:"technology,omitempty"`
	Building   string `json:"building,omitempty"`
	District   string `json:"district,omitempty"`
	Ship       string `json:"ship,omitempty"`
	Upgrade    string `json:"upgrade,omitempty"`

	Path                   []string `json:"path,omitempty"`
	PeriodsInCurrentSystem int      `json:"periods_in_current_system,omitempty"`

	CreatedPeriod   uint64  `json:"created_period"`
	CompletedPeriod uint64  `json:"completed_period,omitempty"`
	Result          *Result `json:"result,omitempty"`
}

func (j *Job) Completed() bool { return j.Result != nil }

func (j *Job) Clone() *Job {
	c := *j
	c.Cost = cloneFloats(j.Cost)
	c.Path = append([]string(nil), j.Path...)
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return &c
}
