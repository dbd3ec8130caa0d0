package models

// All returns every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&Account{},
		&Term{},
		&Teacher{},
		&Student{},
		&Class{},
		&ClassStudent{},
		&Assessment{},
		&Qualification{},
		&Board{},
		&Subject{},
		&Topic{},
		&Subtopic{},
		&ActivityLog{},
	}
}
